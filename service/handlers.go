package service

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"github.com/googlearchive/science-journal-ios/catalog"
	"github.com/googlearchive/science-journal-ios/codec"
	"github.com/googlearchive/science-journal-ios/errors"
	"github.com/googlearchive/science-journal-ios/version"
)

// MaxPayloadSize bounds a conversion payload.
const MaxPayloadSize = 4 << 20 // 4MB

// SchemaInfo describes one catalog schema and its registration.
type SchemaInfo struct {
	Name        catalog.Name `json:"name"`
	Index       int          `json:"index"`
	FullName    string       `json:"full_name"`
	Registered  bool         `json:"registered"`
	Description string       `json:"description,omitempty"`
}

// Handler returns the HTTP routes of the server.
func (s *CatalogServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /catalog", s.handleCatalog)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("GET /schemas", s.handleListSchemas)
	mux.HandleFunc("GET /schemas/{name}", s.handleGetSchema)
	mux.HandleFunc("POST /schemas/{name}/convert", s.handleConvert)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
		mux.HandleFunc("GET /stats", s.handleStats)
	}
	return mux
}

func (s *CatalogServer) handleCatalog(w http.ResponseWriter, r *http.Request) {
	manifest := s.manifest()

	if strings.EqualFold(r.URL.Query().Get("format"), "yaml") {
		data, err := manifest.YAML()
		if err != nil {
			s.logger.Error("Failed to encode manifest", "error", err)
			s.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(data)
		return
	}

	s.writeJSON(w, manifest)
}

func (s *CatalogServer) handleVersion(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, version.Current())
}

func (s *CatalogServer) handleListSchemas(w http.ResponseWriter, _ *http.Request) {
	schemas := catalog.All()
	infos := make([]SchemaInfo, 0, len(schemas))
	for _, schema := range schemas {
		infos = append(infos, s.schemaInfo(schema))
	}
	s.writeJSON(w, map[string]any{"schemas": infos})
}

func (s *CatalogServer) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	schema, ok := s.lookupSchema(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, s.schemaInfo(schema))
}

// handleConvert re-encodes the request body of one schema from one wire
// format to another: POST /schemas/Trial/convert?from=binary&to=json
func (s *CatalogServer) handleConvert(w http.ResponseWriter, r *http.Request) {
	schema, ok := s.lookupSchema(w, r)
	if !ok {
		return
	}

	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		s.writeJSONError(w, "Too many conversions", http.StatusTooManyRequests)
		return
	}

	from, err := codec.ParseFormat(r.URL.Query().Get("from"))
	if err != nil {
		s.writeJSONError(w, "Invalid from format", http.StatusBadRequest)
		return
	}
	to, err := codec.ParseFormat(r.URL.Query().Get("to"))
	if err != nil {
		s.writeJSONError(w, "Invalid to format", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadSize+1))
	if err != nil {
		s.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(body) > MaxPayloadSize {
		s.writeJSONError(w, "Payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	msg, err := s.codec.Unmarshal(schema.Name, body, from)
	if err != nil {
		s.recordError(err)
		if errors.IsInvalid(err) {
			status := http.StatusBadRequest
			if stderrors.Is(err, errors.ErrUnknownSchema) {
				status = http.StatusServiceUnavailable
			}
			s.writeJSONError(w, err.Error(), status)
			return
		}
		s.logger.Error("Failed to decode payload", "schema", schema.Name, "error", err)
		s.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	out, err := s.codec.Marshal(msg, to)
	if err != nil {
		s.recordError(err)
		s.logger.Error("Failed to encode payload", "schema", schema.Name, "error", err)
		s.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", to.ContentType())
	_, _ = w.Write(out)
}

func (s *CatalogServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := s.Health()

	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("Failed to encode health response", "error", err)
	}
}

// handleStats summarizes the catalog counters as JSON.
func (s *CatalogServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	totals, err := s.metrics.CounterTotals()
	if err != nil {
		s.logger.Error("Failed to gather metrics", "error", err)
		s.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{
		"uptime_seconds": s.Uptime().Seconds(),
		"counters":       totals,
	})
}

func (s *CatalogServer) recordError(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.CoreMetrics().RecordError("service", errors.Classify(err).String())
}

func (s *CatalogServer) lookupSchema(w http.ResponseWriter, r *http.Request) (catalog.Schema, bool) {
	name, err := catalog.Parse(r.PathValue("name"))
	if err != nil {
		s.writeJSONError(w, "Unknown schema", http.StatusNotFound)
		return catalog.Schema{}, false
	}
	schema, _ := catalog.Lookup(name)
	return schema, true
}

func (s *CatalogServer) schemaInfo(schema catalog.Schema) SchemaInfo {
	info := SchemaInfo{
		Name:     schema.Name,
		Index:    schema.Index,
		FullName: string(schema.FullName(s.cfg.Package)),
	}
	if reg, ok := s.registry.Registration(schema.Name); ok {
		info.Registered = true
		info.FullName = string(reg.FullName)
		info.Description = reg.Description
	}
	return info
}

// writeJSON writes a JSON response
func (s *CatalogServer) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// writeJSONError writes an error response in JSON format
func (s *CatalogServer) writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		s.logger.Error("Failed to encode error response", "error", err, "message", message)
	}
}
