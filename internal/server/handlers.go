package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/dreamware/ncmerge/internal/container"
	"github.com/dreamware/ncmerge/internal/ctxlog"
	"github.com/dreamware/ncmerge/internal/merge"
	"github.com/dreamware/ncmerge/internal/partstore"
)

// cborEncMode encodes with Core Deterministic Encoding; text marshalers
// such as container.Layout become CBOR text strings.
var cborEncMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.TextMarshaler = cbor.TextMarshalerTextString
	var err error
	cborEncMode, err = opts.EncMode()
	if err != nil {
		panic("server: CBOR encoder initialization failed: " + err.Error())
	}
}

// MarshalCBOR encodes v the way /describe encodes CBOR responses.
func MarshalCBOR(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

// UploadResponse is the body of a successful part upload.
type UploadResponse struct {
	Name   string `json:"name"`
	Part   string `json:"part"`
	Bytes  int    `json:"bytes"`
	Digest string `json:"digest"`
}

// DescribeResponse is the body of /describe.
type DescribeResponse struct {
	Name        string                `json:"name"`
	Part        string                `json:"part"`
	Description container.Description `json:"description"`
	Report      *merge.Report         `json:"report,omitempty"`
}

// DatasetsResponse is the body of /datasets.
type DatasetsResponse struct {
	Datasets []partstore.DatasetInfo `json:"datasets"`
	Count    int                     `json:"count"`
}

// InfoResponse is the body of /info.
type InfoResponse struct {
	Store          partstore.Stats `json:"store"`
	MaxUploadBytes int64           `json:"max_upload_bytes"`
	Uptime         string          `json:"uptime"`
}

// handleUpload stores the request body in one slot of a dataset.
//
// Endpoint: POST /part_a?name=<dataset>, POST /part_b?name=<dataset>
//
// Response:
//   - 202 Accepted: UploadResponse
//   - 400 Bad Request: Missing name or unreadable body
//   - 405 Method Not Allowed: Anything but POST
//   - 413 Request Entity Too Large: Body above the upload limit
//   - 415 Unsupported Media Type: Unknown Content-Encoding
func (s *Server) handleUpload(slot partstore.Slot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		name, ok := datasetName(w, r)
		if !ok {
			return
		}
		data, err := readUpload(w, r, s.maxUpload)
		if err != nil {
			ctxlog.FromContext(r.Context()).Warn("upload rejected", "part", slot.String(), "error", err)
			http.Error(w, err.Error(), uploadStatus(err))
			return
		}
		receipt, err := s.store.Upload(name, slot, data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctxlog.FromContext(r.Context()).Info("part stored", "part", slot.String(), "bytes", receipt.Bytes)
		writeJSON(w, r, http.StatusAccepted, UploadResponse{
			Name:   name,
			Part:   slot.String(),
			Bytes:  receipt.Bytes,
			Digest: receipt.Digest.String(),
		})
	}
}

// handleRead merges both parts of a dataset and returns the container.
//
// Endpoint: GET /read?name=<dataset>
//
// The ETag is derived from the digests of both parts, so a conditional
// request with a matching If-None-Match is answered without merging.
//
// Response:
//   - 200 OK: Merged container bytes
//   - 304 Not Modified: If-None-Match matched
//   - 400 Bad Request: Missing name, or a part is not a valid container
//   - 404 Not Found: Dataset or one of its parts missing
//   - 500 Internal Server Error: Definition conflict or serialization failure
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	name, ok := datasetName(w, r)
	if !ok {
		return
	}
	pair, err := s.store.Get(name)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	etag := pair.ETag()
	w.Header().Set("ETag", etag)
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	res, err := s.merger.Merge(r.Context(), pair.A.Data, pair.B.Data)
	if err != nil {
		w.Header().Del("ETag")
		s.fail(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", ContentType)
	h.Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(name, `"`, "")+`.nc"`)
	h.Set(HeaderFormat, res.Report.Format)
	h.Set(HeaderSkipped, strings.Join(res.Report.SkippedVariables(), ","))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Data); err != nil {
		ctxlog.FromContext(r.Context()).Warn("writing merged container", "error", err)
	}
}

// handleDescribe returns the schema of one part or of the merge.
//
// Endpoint: GET /describe?name=<dataset>&part=a|b|merged
//
// JSON by default; CBOR when the Accept header asks for application/cbor.
func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	name, ok := datasetName(w, r)
	if !ok {
		return
	}
	part := r.URL.Query().Get("part")
	if part == "" {
		part = "merged"
	}

	resp := DescribeResponse{Name: name, Part: part}
	switch part {
	case "merged":
		pair, err := s.store.Get(name)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		dst, rep, err := s.merger.Assemble(r.Context(), pair.A.Data, pair.B.Data)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		resp.Description = container.Describe(dst)
		resp.Report = rep
	default:
		slot, err := partstore.ParseSlot(part)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		p, err := s.store.GetPart(name, slot)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		c, err := s.adapter.Open(p.Data)
		if err != nil {
			s.fail(w, r, &merge.Error{Kind: merge.KindInvalidInput, Op: "open", Name: slot.String(), Err: err})
			return
		}
		resp.Description = container.Describe(c)
	}

	if strings.Contains(r.Header.Get("Accept"), "application/cbor") {
		body, err := cborEncMode.Marshal(resp)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/cbor")
		_, _ = w.Write(body)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleDataset deletes a dataset.
//
// Endpoint: DELETE /dataset?name=<dataset>
//
// Response:
//   - 204 No Content: Deleted
//   - 404 Not Found: Unknown dataset
func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodDelete) {
		return
	}
	name, ok := datasetName(w, r)
	if !ok {
		return
	}
	if !s.store.Delete(name) {
		http.Error(w, "dataset not found", http.StatusNotFound)
		return
	}
	ctxlog.FromContext(r.Context()).Info("dataset deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	list := s.store.List()
	if list == nil {
		list = []partstore.DatasetInfo{}
	}
	writeJSON(w, r, http.StatusOK, DatasetsResponse{Datasets: list, Count: len(list)})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, r, http.StatusOK, InfoResponse{
		Store:          s.store.Stats(),
		MaxUploadBytes: s.maxUpload,
		Uptime:         time.Since(s.started).Round(time.Second).String(),
	})
}

// StatusFor maps an error from the store or the merge engine to an HTTP
// status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, partstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	switch merge.KindOf(err) {
	case merge.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err and writes it with the status StatusFor picks.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	log := ctxlog.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "status", status, "error", err)
	} else {
		log.Warn("request rejected", "status", status, "error", err)
	}
	http.Error(w, err.Error(), status)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func datasetName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "missing name parameter", http.StatusBadRequest)
		return "", false
	}
	return name, true
}

// etagMatches implements the weak comparison of If-None-Match.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ctxlog.FromContext(r.Context()).Warn("encoding response", "error", err)
	}
}
