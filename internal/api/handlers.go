package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"askdata/internal/catalog"
	"askdata/internal/pipeline"
	"askdata/internal/schema"
	"askdata/internal/vectorstore"
)

// answerRequest mirrors the answer endpoints' parameters. GET requests carry
// them as query parameters, POST requests as a JSON body.
type answerRequest struct {
	Question           string   `json:"question"`
	DatabaseNames      string   `json:"vdp_database_names"`
	TagNames           string   `json:"vdp_tag_names"`
	UseViews           string   `json:"use_views"`
	VectorSearchTables []string `json:"vector_search_tables"`
	ExpandSetViews     *bool    `json:"expand_set_views"`
	VectorSearchK      int      `json:"vector_search_k"`
	Mode               string   `json:"mode"`
	Verbose            *bool    `json:"verbose"`
	Plot               bool     `json:"plot"`
	PlotDetails        string   `json:"plot_details"`
	CustomInstructions string   `json:"custom_instructions"`
}

func decodeAnswerRequest(r *http.Request) (answerRequest, error) {
	req := answerRequest{}
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return answerRequest{}, err
		}
		return req, nil
	}

	q := r.URL.Query()
	req.Question = q.Get("question")
	req.DatabaseNames = q.Get("vdp_database_names")
	req.TagNames = q.Get("vdp_tag_names")
	req.UseViews = q.Get("use_views")
	req.Mode = q.Get("mode")
	req.PlotDetails = q.Get("plot_details")
	req.CustomInstructions = q.Get("custom_instructions")
	req.Plot = queryBool(q.Get("plot"), false)
	req.VectorSearchK, _ = strconv.Atoi(q.Get("vector_search_k"))
	if v := q.Get("expand_set_views"); v != "" {
		b := queryBool(v, true)
		req.ExpandSetViews = &b
	}
	if v := q.Get("verbose"); v != "" {
		b := queryBool(v, true)
		req.Verbose = &b
	}
	return req, nil
}

// answerQuestion handles the three answer endpoints. A non-empty forcedMode
// overrides whatever mode the request asked for.
func (s *Server) answerQuestion(forcedMode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		creds, ok := credentialsFrom(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		req, err := decodeAnswerRequest(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "malformed request: "+err.Error())
			return
		}
		if req.Question == "" {
			writeError(w, http.StatusBadRequest, "question is required")
			return
		}

		mode := req.Mode
		if forcedMode != "" {
			mode = forcedMode
		}

		resp, err := s.answerer.Answer(r.Context(), pipeline.AskRequest{
			Question:           req.Question,
			Databases:          splitList(req.DatabaseNames),
			Tags:               splitList(req.TagNames),
			K:                  req.VectorSearchK,
			ForcedViews:        splitList(req.UseViews),
			ExpandAssociations: boolOr(req.ExpandSetViews, true),
			Mode:               mode,
			Verbose:            boolOr(req.Verbose, true),
			Plot:               req.Plot,
			PlotDetails:        req.PlotDetails,
			CustomInstructions: req.CustomInstructions,
			Credentials:        creds,
		})
		if err != nil {
			s.logger.Error("answer failed", zap.String("question", req.Question), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// answerQuestionUsingViews answers against a caller-pinned set of views
// instead of vector search ranking.
func (s *Server) answerQuestionUsingViews(w http.ResponseWriter, r *http.Request) {
	creds, ok := credentialsFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	req, err := decodeAnswerRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if len(req.VectorSearchTables) == 0 {
		writeError(w, http.StatusBadRequest, "vector_search_tables is required")
		return
	}

	resp, err := s.answerer.Answer(r.Context(), pipeline.AskRequest{
		Question:           req.Question,
		Databases:          splitList(req.DatabaseNames),
		Tags:               splitList(req.TagNames),
		K:                  req.VectorSearchK,
		ForcedViews:        req.VectorSearchTables,
		ExpandAssociations: false,
		Mode:               req.Mode,
		Verbose:            boolOr(req.Verbose, true),
		Plot:               req.Plot,
		PlotDetails:        req.PlotDetails,
		CustomInstructions: req.CustomInstructions,
		Credentials:        creds,
	})
	if err != nil {
		s.logger.Error("answer failed", zap.String("question", req.Question), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type searchView struct {
	ViewName     string     `json:"view_name"`
	ViewJSON     schema.Doc `json:"view_json"`
	ViewText     string     `json:"view_text"`
	DatabaseName string     `json:"database_name"`
	TagNames     []string   `json:"tag_names"`
	Score        *float64   `json:"scores,omitempty"`
}

type searchResponse struct {
	Views []searchView `json:"views"`
}

// similaritySearch runs a raw vector search over the views index, filtered
// to what the caller's credentials can see. Unlike the answer endpoints it
// does no association expansion or refill.
func (s *Server) similaritySearch(w http.ResponseWriter, r *http.Request) {
	creds, ok := credentialsFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	q := r.URL.Query()
	query := q.Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	databases := splitList(q.Get("vdp_database_names"))
	tags := splitList(q.Get("vdp_tag_names"))
	k, _ := strconv.Atoi(q.Get("n_results"))
	if k <= 0 {
		k = s.defaultK
	}
	withScores := queryBool(q.Get("scores"), false)

	vector, err := s.engine.Embed(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "embedding failed: "+err.Error())
		return
	}

	allowed := s.perms.AllowedViewIDs(r.Context(), creds, databases, tags)
	var permitted map[schema.ID]bool
	filter := vectorstore.Filter{Databases: databases, Tags: tags}
	if len(allowed) > 0 {
		permitted = make(map[schema.ID]bool, len(allowed))
		for _, id := range allowed {
			permitted[id] = true
			filter.ViewIDs = append(filter.ViewIDs, string(id))
		}
	}

	results, err := s.store.Search(r.Context(), s.viewsIndex, vector, k, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed: "+err.Error())
		return
	}

	out := searchResponse{Views: []searchView{}}
	for _, res := range results {
		var doc schema.Doc
		if err := json.Unmarshal([]byte(res.Metadata.ViewJSON), &doc); err != nil {
			s.logger.Warn("skipping document with bad view descriptor", zap.String("id", res.ID), zap.Error(err))
			continue
		}
		view := searchView{
			ViewName:     res.Metadata.ViewName,
			ViewJSON:     schema.FilterAssociations(doc, permitted),
			ViewText:     res.Content,
			DatabaseName: res.Metadata.DatabaseName,
			TagNames:     res.Metadata.TagNames,
		}
		if withScores {
			score := res.Similarity
			view.Score = &score
		}
		out.Views = append(out.Views, view)
	}
	writeJSON(w, http.StatusOK, out)
}

type metadataResponse struct {
	DBSchemaJSON []schema.Doc `json:"db_schema_json"`
	DBSchemaText []string     `json:"db_schema_text"`
}

// getMetadata fetches view metadata for databases and tags, optionally
// loading it into the vector indexes. One failing database or tag is logged
// and skipped, the rest of the batch continues.
func (s *Server) getMetadata(w http.ResponseWriter, r *http.Request) {
	creds, ok := credentialsFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	q := r.URL.Query()
	databases := splitList(q.Get("vdp_database_names"))
	tags := splitList(q.Get("vdp_tag_names"))
	if len(databases) == 0 && len(tags) == 0 {
		writeError(w, http.StatusBadRequest, "at least one database or tag must be provided")
		return
	}

	examples := 100
	if v := q.Get("examples_per_table"); v != "" {
		examples, _ = strconv.Atoi(v)
	}
	base := catalog.MetadataRequest{
		ExamplesPerTable:   examples,
		Associations:       queryBool(q.Get("associations"), true),
		Descriptions:       queryBool(q.Get("view_descriptions"), true),
		ColumnDescriptions: queryBool(q.Get("column_descriptions"), true),
	}
	insert := queryBool(q.Get("insert"), true)

	requests := make([]catalog.MetadataRequest, 0, len(databases)+len(tags))
	for _, tag := range tags {
		req := base
		req.TagName = tag
		requests = append(requests, req)
	}
	for _, db := range databases {
		req := base
		req.DatabaseName = db
		requests = append(requests, req)
	}

	out := metadataResponse{DBSchemaJSON: []schema.Doc{}, DBSchemaText: []string{}}
	for _, req := range requests {
		docs, err := s.metadata.ViewsMetadata(r.Context(), creds, req)
		if err != nil {
			s.logger.Error("metadata fetch failed",
				zap.String("database", req.DatabaseName), zap.String("tag", req.TagName), zap.Error(err))
			continue
		}
		for _, doc := range docs {
			out.DBSchemaJSON = append(out.DBSchemaJSON, doc)
			out.DBSchemaText = append(out.DBSchemaText, schema.Summary(doc))
		}
		if insert && len(docs) > 0 {
			if _, err := s.indexer.IngestDocs(r.Context(), docs); err != nil {
				s.logger.Error("indexing failed",
					zap.String("database", req.DatabaseName), zap.String("tag", req.TagName), zap.Error(err))
			}
		}
	}

	if len(out.DBSchemaJSON) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func queryBool(v string, fallback bool) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return fallback
	}
}
