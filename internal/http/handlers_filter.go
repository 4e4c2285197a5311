package http

import (
	"context"
	"errors"
	"net/http"

	"orderlens/internal/aggregate"
	"orderlens/internal/core"
	"orderlens/internal/filter"
	"orderlens/internal/log"
	"orderlens/internal/storage"
)

// Every filter endpoint answers with the resulting filter state.

func (s *Server) handleGetFilter(w http.ResponseWriter, r *http.Request) {
	OK(s.session.Filter()).Write(w)
}

// updateFilter applies a transition and writes the new state.
func (s *Server) updateFilter(w http.ResponseWriter, r *http.Request, fn func(filter.Spec) filter.Spec) {
	spec, err := s.session.UpdateFilter(r.Context(), func(cur filter.Spec) (filter.Spec, error) {
		return fn(cur), nil
	})
	if err != nil {
		s.writeError(w, r, log.OpFilter, err)
		return
	}
	OK(spec).Write(w)
}

func (s *Server) handleSetDateRange(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[dateRangeRequest](r)
	if err != nil {
		s.writeError(w, r, log.OpFilter, err)
		return
	}
	start, end, err := req.parseBounds(s.loc)
	if err != nil {
		s.writeError(w, r, log.OpFilter, err)
		return
	}
	s.updateFilter(w, r, func(cur filter.Spec) filter.Spec {
		return cur.SetDateRange(start, end)
	})
}

func (s *Server) handleSetMetric(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[metricRequest](r)
	if err != nil {
		s.writeError(w, r, log.OpFilter, err)
		return
	}
	metric, err := core.ParseMetric(req.Metric)
	if err != nil {
		s.writeError(w, r, log.OpFilter, &RequestError{Status: http.StatusBadRequest, Field: "metric", Message: err.Error()})
		return
	}
	s.updateFilter(w, r, func(cur filter.Spec) filter.Spec {
		return cur.SetMetric(metric)
	})
}

func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[presetRequest](r)
	if err != nil {
		s.writeError(w, r, log.OpFilter, err)
		return
	}
	preset, err := filter.ParsePreset(req.Preset)
	if err != nil {
		s.writeError(w, r, log.OpFilter, &RequestError{Status: http.StatusBadRequest, Field: "preset", Message: err.Error()})
		return
	}
	rng, err := preset.Range(s.now().In(s.loc))
	if err != nil {
		s.writeError(w, r, log.OpFilter, err)
		return
	}
	s.updateFilter(w, r, func(cur filter.Spec) filter.Spec {
		return cur.SetDateRange(rng.Start, rng.End)
	})
}

// valueTransition serves the single-value column endpoints.
func (s *Server) valueTransition(fn func(spec filter.Spec, column, value string) filter.Spec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		column, err := columnParam(r)
		if err != nil {
			s.writeError(w, r, log.OpFilter, err)
			return
		}
		req, err := decodeJSON[valueRequest](r)
		if err != nil {
			s.writeError(w, r, log.OpFilter, err)
			return
		}
		value := *req.Value
		s.updateFilter(w, r, func(cur filter.Spec) filter.Spec {
			return fn(cur, column, value)
		})
	}
}

func (s *Server) handleExcludeValue(w http.ResponseWriter, r *http.Request) {
	s.valueTransition(filter.Spec.ExcludeValue)(w, r)
}

func (s *Server) handleIncludeValue(w http.ResponseWriter, r *http.Request) {
	s.valueTransition(filter.Spec.IncludeValue)(w, r)
}

func (s *Server) handleToggleValue(w http.ResponseWriter, r *http.Request) {
	s.valueTransition(filter.Spec.ToggleValue)(w, r)
}

func (s *Server) handleIncludeAll(w http.ResponseWriter, r *http.Request) {
	column, err := columnParam(r)
	if err != nil {
		s.writeError(w, r, log.OpFilter, err)
		return
	}
	s.updateFilter(w, r, func(cur filter.Spec) filter.Spec {
		return cur.IncludeAll(column)
	})
}

// handleExcludeAll excludes the given values, or every value the column
// takes in the loaded dataset when the body names none.
func (s *Server) handleExcludeAll(w http.ResponseWriter, r *http.Request) {
	column, err := columnParam(r)
	if err != nil {
		s.writeError(w, r, log.OpFilter, err)
		return
	}
	req, err := decodeJSON[excludeAllRequest](r, jsonOptions{AllowEmptyBody: true})
	if err != nil {
		s.writeError(w, r, log.OpFilter, err)
		return
	}
	candidates := req.Values
	if candidates == nil {
		ds, err := s.session.Dataset(r.Context())
		if err != nil {
			s.writeError(w, r, log.OpFilter, err)
			return
		}
		candidates = aggregate.DistinctValues(ds.Orders, column)
	}
	s.updateFilter(w, r, func(cur filter.Spec) filter.Spec {
		return cur.ExcludeAll(column, candidates)
	})
}

func (s *Server) handleRemoveColumnFilter(w http.ResponseWriter, r *http.Request) {
	column, err := columnParam(r)
	if err != nil {
		s.writeError(w, r, log.OpFilter, err)
		return
	}
	s.updateFilter(w, r, func(cur filter.Spec) filter.Spec {
		return cur.RemoveColumnFilter(column)
	})
}

func (s *Server) handleGetView(w http.ResponseWriter, r *http.Request) {
	OK(s.session.View()).Write(w)
}

// handleSetView merges the given fields into the current view. A breakdown
// column must exist in the loaded dataset.
func (s *Server) handleSetView(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[viewRequest](r)
	if err != nil {
		s.writeError(w, r, log.OpAggregate, err)
		return
	}

	view := s.session.View()
	if req.Granularity != nil {
		g, err := core.ParseGranularity(*req.Granularity)
		if err != nil {
			s.writeError(w, r, log.OpAggregate, &RequestError{Status: http.StatusBadRequest, Field: "granularity", Message: err.Error()})
			return
		}
		view.Granularity = g
	}
	if req.TopN != nil {
		view.TopN = *req.TopN
	}
	if req.BreakdownColumn != nil {
		if err := s.checkColumn(r.Context(), *req.BreakdownColumn); err != nil {
			s.writeError(w, r, log.OpAggregate, err)
			return
		}
		view.BreakdownColumn = *req.BreakdownColumn
	}

	view, err = s.session.SetView(r.Context(), view)
	if err != nil {
		s.writeError(w, r, log.OpAggregate, err)
		return
	}
	OK(view).Write(w)
}

// checkColumn accepts "" (no breakdown) and any column of the loaded
// dataset. Without a dataset every name is accepted.
func (s *Server) checkColumn(ctx context.Context, column string) error {
	if column == "" {
		return nil
	}
	ds, err := s.session.Dataset(ctx)
	if errors.Is(err, storage.ErrNoDataset) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, c := range aggregate.Columns(ds.Orders) {
		if c == column {
			return nil
		}
	}
	return &RequestError{Status: http.StatusUnprocessableEntity, Field: "breakdown_column", Message: "unknown column " + column}
}
