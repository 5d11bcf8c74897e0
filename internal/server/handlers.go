package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	gojson "github.com/goccy/go-json"

	"github.com/hupe1980/kvsearch"
	"github.com/hupe1980/kvsearch/catalog"
	"github.com/hupe1980/kvsearch/model"
	"github.com/hupe1980/kvsearch/search"
)

const tableKey = "kvsearch.table"

// searchResponse is the wire form of a result page.
type searchResponse struct {
	Hits           []model.Hit `json:"hits"`
	Token          string      `json:"token,omitempty"`
	Partial        bool        `json:"partial,omitempty"`
	ExcludedShards []int       `json:"excluded_shards,omitempty"`
	RequestID      string      `json:"request_id"`
}

// pageJSON holds the paging fields of a search body. The remaining fields
// are decoded by search.ParseRequest.
type pageJSON struct {
	Limit int    `json:"limit"`
	Token string `json:"token"`
}

func (s *Server) lookup(c *gin.Context) {
	t, ok := s.Table(c.Param("table"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("table %q not found", c.Param("table"))})
		return
	}
	c.Set(tableKey, t)
	c.Next()
}

func table(c *gin.Context) *kvsearch.Table {
	return c.MustGet(tableKey).(*kvsearch.Table)
}

func (s *Server) listTables(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tables": s.Names()})
}

func (s *Server) createTable(c *gin.Context) {
	if s.opts.Catalog == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no catalog configured"})
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusRequestEntityTooLarge, err)
		return
	}
	var d catalog.Descriptor
	if err := gojson.Unmarshal(body, &d); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if _, exists := s.Table(d.Name); exists {
		fail(c, http.StatusConflict, fmt.Errorf("table %q already exists", d.Name))
		return
	}
	t, err := kvsearch.Create(c.Request.Context(), s.opts.Catalog, &d, s.opts.TableOptions...)
	if err != nil {
		failErr(c, err)
		return
	}
	s.Register(t)
	c.JSON(http.StatusCreated, gin.H{"name": t.Name(), "fields": t.Schema().Fields(), "version": d.Version})
}

func (s *Server) upsertRows(c *gin.Context) {
	t := table(c)
	rows, err := decodeRows(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	ctx := c.Request.Context()
	if len(rows) == 1 {
		if err := t.UpsertColumns(ctx, rows[0]); err != nil {
			failErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"indexed": 1})
		return
	}

	records := make([]model.Row, len(rows))
	for i, cols := range rows {
		r, err := t.Layout().NewRecord(cols)
		if err != nil {
			fail(c, http.StatusBadRequest, fmt.Errorf("row %d: %w", i, err))
			return
		}
		records[i] = r
	}
	n, err := t.IndexAll(ctx, model.NewSliceRowIterator(records...))
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error(), "indexed": n})
		return
	}
	c.JSON(http.StatusOK, gin.H{"indexed": n})
}

func (s *Server) deleteRow(c *gin.Context) {
	t := table(c)
	rows, err := decodeRows(c.Request.Body)
	if err != nil || len(rows) != 1 {
		fail(c, http.StatusBadRequest, errors.Join(errors.New("expected one object of key columns"), err))
		return
	}
	key, err := t.Layout().Key(rows[0])
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	found, err := t.Delete(c.Request.Context(), key)
	if err != nil {
		failErr(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"deleted": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) search(c *gin.Context) {
	req, page, err := decodeSearch(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	res, err := table(c).Search(c.Request.Context(), req, page)
	if err != nil {
		failErr(c, err)
		return
	}
	hits := res.Hits
	if hits == nil {
		hits = []model.Hit{}
	}
	c.JSON(http.StatusOK, searchResponse{
		Hits:           hits,
		Token:          res.Token,
		Partial:        res.Partial,
		ExcludedShards: res.ExcludedShards,
		RequestID:      res.RequestID,
	})
}

func (s *Server) explain(c *gin.Context) {
	req, _, err := decodeSearch(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	plan, err := table(c).Explain(req)
	if err != nil {
		failErr(c, err)
		return
	}
	c.String(http.StatusOK, plan)
}

func decodeSearch(r io.Reader) (*search.Request, kvsearch.Page, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, kvsearch.Page{}, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return search.NewRequest(), kvsearch.Page{}, nil
	}
	var p pageJSON
	if err := gojson.Unmarshal(body, &p); err != nil {
		return nil, kvsearch.Page{}, err
	}
	if p.Limit < 0 {
		return nil, kvsearch.Page{}, fmt.Errorf("negative limit %d", p.Limit)
	}
	req, err := search.ParseRequest(body)
	if err != nil {
		return nil, kvsearch.Page{}, err
	}
	return req, kvsearch.Page{Limit: p.Limit, Token: p.Token}, nil
}

// decodeRows decodes a JSON object or an array of objects into column maps.
func decodeRows(r io.Reader) ([]map[string]model.Value, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}

	dec := gojson.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw []map[string]any
	if body[0] == '[' {
		err = dec.Decode(&raw)
	} else {
		var one map[string]any
		err = dec.Decode(&one)
		raw = append(raw, one)
	}
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]model.Value, len(raw))
	for i, obj := range raw {
		cols := make(map[string]model.Value, len(obj))
		for name, x := range obj {
			v, err := model.FromAny(x)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i, name, err)
			}
			cols[name] = v
		}
		rows[i] = cols
	}
	return rows, nil
}

// statusOf maps table errors to HTTP status codes.
func statusOf(err error) int {
	var (
		mce *kvsearch.MappingConfigurationError
		ufe *kvsearch.UnknownFieldError
		uoe *kvsearch.UnsupportedOperationError
		vce *kvsearch.ValueCoercionError
		use *kvsearch.UnsupportedSortError
		ice *kvsearch.InvalidConditionError
		see *kvsearch.ShardExecutionError
	)
	switch {
	case errors.As(err, &mce), errors.As(err, &ufe), errors.As(err, &uoe),
		errors.As(err, &vce), errors.As(err, &use), errors.As(err, &ice),
		errors.Is(err, kvsearch.ErrInvalidResumeToken), errors.Is(err, kvsearch.ErrInvalidTopology):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, kvsearch.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &see):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func failErr(c *gin.Context, err error) {
	fail(c, statusOf(err), err)
}

func fail(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}
