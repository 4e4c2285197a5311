package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"orderlens/internal/aggregate"
	"orderlens/internal/core"
	"orderlens/internal/dashboard"
	"orderlens/internal/filter"
	"orderlens/internal/log"
	"orderlens/internal/parser"
	"orderlens/internal/storage"

	"github.com/dustin/go-humanize"
)

// multipartMemory is how much of a multipart upload is held in memory
// before spilling to temporary files.
const multipartMemory = 8 << 20

const defaultUploadName = "upload.csv"

type datasetResponse struct {
	storage.Dataset
	Orders int `json:"orders"`
}

type uploadResponse struct {
	Dataset datasetResponse `json:"dataset"`
	Stats   parseStats      `json:"stats"`
}

type parseStats struct {
	Rows            int `json:"rows"`
	Kept            int `json:"kept"`
	Dropped         int `json:"dropped"`
	MissingDate     int `json:"missing_date"`
	MissingAmount   int `json:"missing_amount"`
	UnparseableDate int `json:"unparseable_date"`
}

func newParseStats(st parser.Stats) parseStats {
	return parseStats{
		Rows:            st.Rows,
		Kept:            st.Kept,
		Dropped:         st.Dropped(),
		MissingDate:     st.MissingDate,
		MissingAmount:   st.MissingAmount,
		UnparseableDate: st.UnparseableDate,
	}
}

func newDatasetResponse(ds storage.Dataset) datasetResponse {
	return datasetResponse{Dataset: ds, Orders: len(ds.Orders)}
}

// handleUpload replaces the dataset with the uploaded export. The body is
// either the raw file or a multipart form with a "file" field. A rejected
// upload leaves the current dataset in place.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	src, name, err := uploadSource(r)
	if err != nil {
		s.writeUploadError(w, r, err)
		return
	}
	defer src.Close()

	orders, stats, err := s.parser.Parse(ctx, src)
	if err != nil {
		s.writeUploadError(w, r, err)
		return
	}

	ds := storage.NewDataset(name, orders, stats.Rows, stats.Dropped(), s.now())
	if err := s.session.Load(ctx, ds); err != nil {
		s.writeError(w, r, log.OpUpload, err)
		return
	}
	log.NewStructuredLogger(log.FromContext(ctx)).LogDatasetLoaded(ctx, ds.ID.String(), ds.Name, stats.Rows, stats.Kept)

	Created(uploadResponse{Dataset: newDatasetResponse(ds), Stats: newParseStats(stats)}).Write(w)
}

// uploadSource picks the file out of the request.
func uploadSource(r *http.Request) (io.ReadCloser, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		name := strings.TrimSpace(r.URL.Query().Get("name"))
		if name == "" {
			name = defaultUploadName
		}
		return r.Body, filepath.Base(name), nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, "", &core.SourceReadError{Source: "multipart form", Err: err}
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", &RequestError{Status: http.StatusBadRequest, Field: "file", Message: "file is required"}
		}
		return nil, "", &core.SourceReadError{Source: "multipart form", Err: err}
	}
	name := filepath.Base(header.Filename)
	if name == "." || name == "/" || name == "" {
		name = defaultUploadName
	}
	return file, name, nil
}

// writeUploadError answers a failed upload: 413 when the size limit was hit,
// 400 when the body could not be read, 422 when it is not tabular.
func (s *Server) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var tooLarge *http.MaxBytesError
	var malformed *core.MalformedInputError
	switch {
	case errors.As(err, &tooLarge):
		ErrorResponse(http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %s", humanize.IBytes(uint64(tooLarge.Limit)))).Write(w)
	case errors.As(err, &malformed):
		log.FromContext(ctx).WarnContext(ctx, "Upload rejected", log.FieldOperation, log.OpParse, log.FieldError, err)
		UnprocessableEntityError(malformed.Error()).Write(w)
	case errors.Is(err, core.ErrSourceRead):
		log.FromContext(ctx).WarnContext(ctx, "Upload unreadable", log.FieldOperation, log.OpUpload, log.FieldError, err)
		BadRequestError("could not read upload").Write(w)
	default:
		s.writeError(w, r, log.OpUpload, err)
	}
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	ds, err := s.session.Dataset(r.Context())
	if errors.Is(err, storage.ErrNoDataset) {
		NotFoundError("no dataset loaded").Write(w)
		return
	}
	if err != nil {
		s.writeError(w, r, log.OpUpload, err)
		return
	}
	OK(newDatasetResponse(ds)).Write(w)
}

type columnsResponse struct {
	Columns       []string              `json:"columns"`
	ActiveFilters []filter.ActiveFilter `json:"active_filters"`
}

// handleColumns lists the selectable dimensions of the loaded dataset.
func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	ds, err := s.session.Dataset(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpFilter, err)
		return
	}
	columns := aggregate.Columns(ds.Orders)
	if columns == nil {
		columns = []string{}
	}
	active := s.session.Filter().ActiveFilters()
	if active == nil {
		active = []filter.ActiveFilter{}
	}
	OK(columnsResponse{Columns: columns, ActiveFilters: active}).Write(w)
}

type columnValue struct {
	Value    string `json:"value"`
	Excluded bool   `json:"excluded"`
}

type columnValuesResponse struct {
	Column string        `json:"column"`
	Query  string        `json:"query,omitempty"`
	Total  int           `json:"total"`
	Values []columnValue `json:"values"`
}

// handleColumnValues lists the distinct values of one column, optionally
// narrowed by a case-insensitive ?q= search, with their exclusion state.
func (s *Server) handleColumnValues(w http.ResponseWriter, r *http.Request) {
	column, err := columnParam(r)
	if err != nil {
		s.writeError(w, r, log.OpFilter, err)
		return
	}
	ds, err := s.session.Dataset(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpFilter, err)
		return
	}

	all := aggregate.DistinctValues(ds.Orders, column)
	query := r.URL.Query().Get("q")
	excluded, _ := s.session.Filter().Excluded(column)

	matches := aggregate.SearchValues(all, query)
	values := make([]columnValue, 0, len(matches))
	for _, v := range matches {
		values = append(values, columnValue{Value: v, Excluded: excluded.Has(v)})
	}
	OK(columnValuesResponse{Column: column, Query: query, Total: len(all), Values: values}).Write(w)
}

type optionsResponse struct {
	Metrics       []core.Metric      `json:"metrics"`
	Granularities []core.Granularity `json:"granularities"`
	Presets       []filter.Preset    `json:"presets"`
	MaxTopN       int                `json:"max_top_n"`
}

// handleOptions lists the values the filter and view endpoints accept.
func handleOptions(w http.ResponseWriter, r *http.Request) {
	OK(optionsResponse{
		Metrics:       []core.Metric{core.MetricAmount, core.MetricQuantity},
		Granularities: core.Granularities(),
		Presets:       filter.Presets(),
		MaxTopN:       dashboard.MaxTopN,
	}).Write(w)
}
