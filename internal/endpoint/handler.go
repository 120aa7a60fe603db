package endpoint

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/engine"
	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member/sparqlhttp"
	"github.com/roach88/fedq/internal/sparql"
)

// maxQueryBytes bounds the body of a direct POST query.
const maxQueryBytes = 1 << 20

// ServeHTTP implements the query operation of the SPARQL 1.1 protocol:
// GET with a query parameter, POST with a form-encoded query, or POST
// with an application/sparql-query body. Results are written as SPARQL
// JSON.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query, err := readQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	root, err := e.Prepare(query)
	if err != nil {
		e.fail(w, query, err)
		return
	}

	ctx := r.Context()
	var res sparqlhttp.Results
	if root.Form == algebra.FormAsk {
		ok, err := e.engine.Ask(ctx, root, ir.BindingSet{}, engine.Dataset{})
		if err != nil {
			e.fail(w, query, err)
			return
		}
		res = sparqlhttp.NewAskResults(ok)
	} else {
		s, err := e.engine.Evaluate(ctx, root, ir.BindingSet{}, engine.Dataset{})
		if err != nil {
			e.fail(w, query, err)
			return
		}
		rows, err := ir.Collect(ctx, s)
		if err != nil {
			e.fail(w, query, err)
			return
		}
		res = sparqlhttp.NewSelectResults(algebra.ResultNames(root), rows)
	}

	w.Header().Set("Content-Type", sparqlhttp.ContentType)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		e.logger.Warn("write results failed", "endpoint", e.id, "error", err)
	}
}

func (e *Endpoint) fail(w http.ResponseWriter, query string, err error) {
	status := http.StatusInternalServerError
	var syn *sparql.SyntaxError
	if errors.As(err, &syn) {
		status = http.StatusBadRequest
	}
	e.logger.Warn("query failed",
		"endpoint", e.id,
		"status", status,
		"query", query,
		"error", err)
	http.Error(w, err.Error(), status)
}

func readQuery(r *http.Request) (string, error) {
	switch r.Method {
	case http.MethodGet:
		if q := r.URL.Query().Get("query"); q != "" {
			return q, nil
		}
		return "", errors.New("missing query parameter")
	case http.MethodPost:
		ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if ct == "application/sparql-query" {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxQueryBytes))
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(string(body)) == "" {
				return "", errors.New("empty query body")
			}
			return string(body), nil
		}
		if err := r.ParseForm(); err != nil {
			return "", err
		}
		if q := r.PostForm.Get("query"); q != "" {
			return q, nil
		}
		return "", errors.New("missing query form field")
	}
	return "", errors.New("method not allowed: " + r.Method)
}
