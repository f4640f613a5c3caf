package mcpcore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/hybridindex"
	"github.com/wheattoast11/deepresearch-mcp/internal/jobengine"
	"github.com/wheattoast11/deepresearch-mcp/internal/llmgateway"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
	"github.com/wheattoast11/deepresearch-mcp/internal/orchestrator"
	"github.com/wheattoast11/deepresearch-mcp/internal/repository"
	"github.com/wheattoast11/deepresearch-mcp/internal/version"
)

// Dependencies bundles the domain services the tool catalog is wired
// against (§4.7 "Tool registry"); mirrors the data-flow diagram's
// Transport -> Auth -> MCP Core -> Tool Handler -> (Orchestrator | Hybrid
// Index | Storage Gateway | LLM Gateway).
type Dependencies struct {
	Engine  *jobengine.Engine
	Repos   *repository.Repositories
	Index   *hybridindex.Index
	Gateway llmgateway.Gateway
	Started time.Time
}

func objSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func strProp(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }
func boolProp(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}
func numProp(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}
func arrProp(items map[string]any, desc string) map[string]any {
	return map[string]any{"type": "array", "items": items, "description": desc}
}

// RegisterDomainTools populates reg with the full tool catalog (minimum
// set) from §6, wired against deps.
func RegisterDomainTools(reg *Registry, deps Dependencies) {
	registerUtilityTools(reg)
	registerJobTools(reg, deps)
	registerResearchTools(reg, deps)
	registerRetrievalTools(reg, deps)
	registerIndexTools(reg, deps)
	registerCatalogTools(reg, deps)
	reg.RegisterTool(agentUnifiedTool(deps))
}

func registerUtilityTools(reg *Registry) {
	reg.RegisterTool(&Tool{
		Name:        "ping",
		Description: "Liveness check; echoes server identity.",
		Schema:      objSchema(map[string]any{"info": boolProp("include extended server info")}),
		AlwaysOn:    true,
		Annotations: ToolAnnotations{Title: "Ping", ReadOnlyHint: true, IdempotentHint: true},
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			out := map[string]any{"pong": true}
			if b, _ := args["info"].(bool); b {
				out["serverInfo"] = version.Get()
			}
			return out, nil
		},
	})

	reg.RegisterTool(&Tool{
		Name:        "calc",
		Description: "Evaluate a small arithmetic expression.",
		Schema:      objSchema(map[string]any{"expr": strProp("arithmetic expression, e.g. \"2 + 2 * 3\"")}, "expr"),
		Normalize:   normalizeCalc,
		Annotations: ToolAnnotations{Title: "Calculator", ReadOnlyHint: true, IdempotentHint: true},
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			expr, _ := args["expr"].(string)
			if expr == "" {
				return nil, apierr.New(apierr.CodeInvalidParams, "expr is required")
			}
			result, err := evalArithmetic(expr)
			if err != nil {
				return nil, apierr.Wrap(apierr.CodeInvalidParams, err, "failed to evaluate expression")
			}
			return map[string]any{"expr": expr, "result": result}, nil
		},
	})

	reg.RegisterTool(&Tool{
		Name:        "date_time",
		Description: "Return the current time in the requested format.",
		Schema:      objSchema(map[string]any{"format": strProp("one of iso, rfc, epoch")}),
		Normalize:   normalizeDateTime,
		Annotations: ToolAnnotations{Title: "Date/Time", ReadOnlyHint: true},
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			format, _ := args["format"].(string)
			now := time.Now().UTC()
			switch strings.ToLower(format) {
			case "rfc":
				return map[string]any{"value": now.Format(time.RFC1123)}, nil
			case "epoch":
				return map[string]any{"value": now.Unix()}, nil
			default:
				return map[string]any{"value": now.Format(time.RFC3339)}, nil
			}
		},
	})
}

func registerJobTools(reg *Registry, deps Dependencies) {
	jobIDSchema := objSchema(map[string]any{"job_id": strProp("job identifier")}, "job_id")

	getJob := func(ctx context.Context, args map[string]any) (*models.Job, error) {
		id, _ := args["job_id"].(string)
		if id == "" {
			return nil, apierr.New(apierr.CodeInvalidParams, "job_id is required")
		}
		job, err := deps.Repos.Job.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, apierr.New(apierr.CodeNotFound, "job not found: "+id)
		}
		return job, nil
	}

	statusHandler := func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
		job, err := getJob(ctx, args)
		if err != nil {
			return nil, err
		}
		format, _ := args["format"].(string)
		if format == "" {
			format = "summary"
		}
		out := map[string]any{"job_id": job.ID, "status": job.Status, "attempt": job.Attempt}
		if format == "events" || format == "full" {
			events, err := deps.Repos.JobEvent.GetJobEvents(ctx, job.ID, 0, 500)
			if err != nil {
				return nil, err
			}
			out["events"] = events
		}
		if format == "full" && job.ResultJSON != "" {
			out["result"] = job.ResultJSON
		}
		return out, nil
	}

	for _, name := range []string{"job_status", "get_job_status"} {
		reg.RegisterTool(&Tool{
			Name:        name,
			Description: "Return a job's current status, optionally including its event log.",
			Schema:      objSchema(map[string]any{"job_id": strProp("job identifier"), "format": strProp("summary|events|full")}, "job_id"),
			Normalize:   normalizeJobID,
			AlwaysOn:    true,
			Annotations: ToolAnnotations{Title: "Job Status", ReadOnlyHint: true, IdempotentHint: true},
			Handler:     statusHandler,
		})
	}

	reg.RegisterTool(&Tool{
		Name:        "get_job_result",
		Description: "Return a completed job's result payload.",
		Schema:      jobIDSchema,
		Normalize:   normalizeJobID,
		AlwaysOn:    true,
		Annotations: ToolAnnotations{Title: "Job Result", ReadOnlyHint: true, IdempotentHint: true},
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			job, err := getJob(ctx, args)
			if err != nil {
				return nil, err
			}
			switch job.Status {
			case models.JobStatusSucceeded:
				return map[string]any{"job_id": job.ID, "status": job.Status, "result": job.ResultJSON}, nil
			case models.JobStatusFailed:
				return nil, apierr.New(apierr.CodeUpstreamError, job.ErrorMessage)
			case models.JobStatusCanceled:
				return nil, apierr.New(apierr.CodeConflict, "job was canceled")
			default:
				return map[string]any{"job_id": job.ID, "status": job.Status}, nil
			}
		},
	})

	reg.RegisterTool(&Tool{
		Name:        "cancel_job",
		Description: "Request cooperative cancellation of a queued or running job.",
		Schema:      jobIDSchema,
		Normalize:   normalizeJobID,
		AlwaysOn:    true,
		Annotations: ToolAnnotations{Title: "Cancel Job", DestructiveHint: true},
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			id, _ := args["job_id"].(string)
			if id == "" {
				return nil, apierr.New(apierr.CodeInvalidParams, "job_id is required")
			}
			if err := deps.Engine.Cancel(ctx, id); err != nil {
				return nil, err
			}
			return map[string]any{"job_id": id, "status": "cancel_requested"}, nil
		},
	})
}

// researchJobSchema is shared by research/submit_research/conduct_research.
func researchJobSchema() map[string]any {
	return objSchema(map[string]any{
		"query":          strProp("the research question"),
		"async":          boolProp("submit as an asynchronous job (default true)"),
		"costPreference": strProp("one of very_low, low, high"),
		"audienceLevel":  strProp("target audience, e.g. expert, general"),
		"outputFormat":   strProp("markdown or plain"),
		"includeSources": boolProp("include model sources in the report"),
		"textDocuments":  arrProp(map[string]any{"type": "string"}, "attached text documents"),
		"structuredData": strProp("attached structured data, e.g. a JSON/CSV blob"),
	}, "query")
}

func submitResearchJob(ctx context.Context, deps Dependencies, args map[string]any) (*jobengine.SubmitResult, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, apierr.New(apierr.CodeInvalidParams, "query is required")
	}
	input := orchestrator.Input{
		Query:          query,
		CostPreference: orchestrator.CostPreference(stringOr(args["costPreference"], "")),
		AudienceLevel:  stringOr(args["audienceLevel"], ""),
		OutputFormat:   orchestrator.OutputFormat(stringOr(args["outputFormat"], "")),
		IncludeSources: boolOr(args["includeSources"], false),
		StructuredData: stringOr(args["structuredData"], ""),
	}
	if docs, ok := args["textDocuments"].([]any); ok {
		for _, d := range docs {
			if s, ok := d.(string); ok {
				input.TextDocuments = append(input.TextDocuments, s)
			}
		}
	}
	idemKey, _ := args["idempotency_key"].(string)
	forceNew := boolOr(args["force_new"], false)
	notify, _ := args["notify"].(string)

	return deps.Engine.Submit(ctx, jobengine.SubmitRequest{
		Type:           models.JobTypeResearch,
		Params:         input,
		IdempotencyKey: idemKey,
		ForceNew:       forceNew,
		WebhookURL:     notify,
	})
}

// jobResponse renders the canonical job response shape from §6.
func jobResponse(res *jobengine.SubmitResult) map[string]any {
	out := map[string]any{
		"job_id": res.Job.ID,
		"status": res.Job.Status,
		"resources": map[string]any{
			"monitor": "/jobs/" + res.Job.ID + "/events",
			"status":  "tools://job_status",
			"result":  "tools://get_job_result",
		},
		"idempotency_key": res.Job.IdempotencyKey,
	}
	if res.ExistingJob {
		out["existing_job"] = true
	}
	if res.Cached {
		out["cached"] = true
		out["result"] = res.Job.ResultJSON
	}
	return out
}

func registerResearchTools(reg *Registry, deps Dependencies) {
	asyncHandler := func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
		res, err := submitResearchJob(ctx, deps, args)
		if err != nil {
			return nil, err
		}
		return jobResponse(res), nil
	}

	reg.RegisterTool(&Tool{
		Name:        "research",
		Description: "Run multi-agent deep research over a query; async by default.",
		Schema:      researchJobSchema(),
		Normalize:   normalizeResearch,
		Annotations: ToolAnnotations{Title: "Research", OpenWorldHint: true},
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			if !boolOr(args["async"], true) {
				return syncResearch(ctx, deps, args)
			}
			return asyncHandler(ctx, args, progress)
		},
	})

	reg.RegisterTool(&Tool{
		Name:        "submit_research",
		Description: "Submit a research job and return immediately with a job id.",
		Schema:      researchJobSchema(),
		Normalize:   normalizeResearch,
		Annotations: ToolAnnotations{Title: "Submit Research", OpenWorldHint: true},
		Handler:     asyncHandler,
	})

	reg.RegisterTool(&Tool{
		Name:        "conduct_research",
		Description: "Run a research job synchronously and return the finished report.",
		Schema:      researchJobSchema(),
		Normalize:   normalizeResearch,
		Annotations: ToolAnnotations{Title: "Conduct Research", OpenWorldHint: true},
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			return syncResearch(ctx, deps, args)
		},
	})
}

// syncResearch submits the job then polls until it reaches a terminal
// state, for the explicit synchronous variant (§6 conduct_research).
func syncResearch(ctx context.Context, deps Dependencies, args map[string]any) (any, error) {
	res, err := submitResearchJob(ctx, deps, args)
	if err != nil {
		return nil, err
	}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		job, err := deps.Repos.Job.GetJob(ctx, res.Job.ID)
		if err != nil {
			return nil, err
		}
		switch job.Status {
		case models.JobStatusSucceeded:
			return map[string]any{"job_id": job.ID, "status": job.Status, "result": job.ResultJSON}, nil
		case models.JobStatusFailed:
			return nil, apierr.New(apierr.CodeUpstreamError, job.ErrorMessage)
		case models.JobStatusCanceled:
			return nil, apierr.New(apierr.CodeConflict, "job was canceled")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func registerRetrievalTools(reg *Registry, deps Dependencies) {
	reg.RegisterTool(&Tool{
		Name:        "retrieve",
		Description: "Query the hybrid index or run a read-only SQL query.",
		Schema: objSchema(map[string]any{
			"mode":  strProp("index or sql"),
			"query": strProp("index-mode search text"),
			"sql":   strProp("sql-mode SELECT statement"),
			"k":     numProp("number of index results to return"),
			"scope": strProp("reports restricts to report documents; docs and both search every document"),
		}),
		Normalize:   normalizeRetrieve,
		Annotations: ToolAnnotations{Title: "Retrieve", ReadOnlyHint: true},
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			mode := stringOr(args["mode"], "index")
			if mode == "sql" {
				sql, _ := args["sql"].(string)
				return deps.Repos.SQL.ExecuteReadOnlySql(ctx, sql, nil)
			}
			query := stringOr(args["query"], "")
			if query == "" {
				return nil, apierr.New(apierr.CodeInvalidParams, "query is required in index mode")
			}
			k := intOr(args["k"], 10)
			scope := hybridindex.Scope{}
			if s := stringOr(args["scope"], ""); s == "reports" {
				scope.Origin = models.DocOriginReport
			}
			return deps.Index.Search(ctx, query, k, scope)
		},
	})

	reg.RegisterTool(&Tool{
		Name:        "execute_sql",
		Description: "Execute a single read-only, allowlisted SQL statement.",
		Schema:      objSchema(map[string]any{"sql": strProp("SELECT statement"), "params": arrProp(map[string]any{}, "bound parameters")}, "sql"),
		Annotations: ToolAnnotations{Title: "Execute SQL", ReadOnlyHint: true},
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			sql, _ := args["sql"].(string)
			var params []any
			if p, ok := args["params"].([]any); ok {
				params = p
			}
			return deps.Repos.SQL.ExecuteReadOnlySql(ctx, sql, params)
		},
	})

	for _, name := range []string{"get_report", "get_report_content"} {
		reg.RegisterTool(&Tool{
			Name:        name,
			Description: "Return a persisted research report by id.",
			Schema:      objSchema(map[string]any{"reportId": strProp("report id"), "mode": strProp("summary or full"), "maxChars": numProp("truncate body to this many characters")}, "reportId"),
			Normalize:   normalizeReportID,
			Annotations: ToolAnnotations{Title: "Get Report", ReadOnlyHint: true, IdempotentHint: true},
			Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
				idStr, _ := args["reportId"].(string)
				id, err := strconv.ParseInt(idStr, 10, 64)
				if err != nil {
					return nil, apierr.Wrap(apierr.CodeInvalidParams, err, "reportId must be numeric")
				}
				report, err := deps.Repos.Report.GetReport(ctx, id)
				if err != nil {
					return nil, err
				}
				if report == nil {
					return nil, apierr.New(apierr.CodeNotFound, "report not found")
				}
				body := report.OutputMD
				if max := intOr(args["maxChars"], 0); max > 0 {
					if r := []rune(body); len(r) > max {
						body = string(r[:max])
					}
				}
				if stringOr(args["mode"], "full") == "summary" {
					return map[string]any{"id": report.ID, "query": report.Query, "metadata": report.Metadata}, nil
				}
				return map[string]any{"id": report.ID, "query": report.Query, "output_markdown": body, "sources": report.Sources, "metadata": report.Metadata}, nil
			},
		})
	}

	for _, name := range []string{"history", "list_research_history"} {
		reg.RegisterTool(&Tool{
			Name:        name,
			Description: "List recently completed research reports.",
			Schema:      objSchema(map[string]any{"limit": numProp("max reports to return"), "queryFilter": strProp("substring filter over the original query")}),
			Normalize:   normalizeHistory,
			Annotations: ToolAnnotations{Title: "Research History", ReadOnlyHint: true},
			Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
				limit := intOr(args["limit"], 20)
				if limit <= 0 {
					return []*models.Report{}, nil
				}
				reports, err := deps.Repos.Report.ListRecentReports(ctx, limit)
				if err != nil {
					return nil, err
				}
				filter := stringOr(args["queryFilter"], "")
				if filter == "" {
					return reports, nil
				}
				var out []*models.Report
				for _, r := range reports {
					if strings.Contains(strings.ToLower(r.Query), strings.ToLower(filter)) {
						out = append(out, r)
					}
				}
				return out, nil
			},
		})
	}
}

func registerIndexTools(reg *Registry, deps Dependencies) {
	reg.RegisterTool(&Tool{
		Name:        "index_texts",
		Description: "Add one or more plain-text documents to the hybrid index.",
		Schema:      objSchema(map[string]any{"texts": arrProp(map[string]any{"type": "string"}, "document bodies"), "title": strProp("title given to every document (default: numbered)")}, "texts"),
		Annotations: ToolAnnotations{Title: "Index Texts"},
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			texts, _ := args["texts"].([]any)
			title := stringOr(args["title"], "")
			var docs []*models.IndexDocument
			for i, t := range texts {
				body, _ := t.(string)
				if body == "" {
					continue
				}
				docTitle := title
				if docTitle == "" {
					docTitle = fmt.Sprintf("text document %d", i+1)
				}
				docs = append(docs, &models.IndexDocument{ID: ulid.Make().String(), Origin: models.DocOriginText, Title: docTitle, Body: body})
			}
			if err := deps.Index.IndexDocuments(ctx, docs); err != nil {
				return nil, err
			}
			return map[string]any{"indexed": len(docs)}, nil
		},
	})

	reg.RegisterTool(&Tool{
		Name:        "index_url",
		Description: "Fetch a URL and add its text content to the hybrid index.",
		Schema:      objSchema(map[string]any{"url": strProp("url to fetch")}, "url"),
		Annotations: ToolAnnotations{Title: "Index URL", OpenWorldHint: true},
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			url, _ := args["url"].(string)
			if url == "" {
				return nil, apierr.New(apierr.CodeInvalidParams, "url is required")
			}
			body, err := fetchURLText(ctx, url)
			if err != nil {
				return nil, apierr.Wrap(apierr.CodeUpstreamError, err, "failed to fetch url")
			}
			doc := &models.IndexDocument{ID: ulid.Make().String(), Origin: models.DocOriginURL, Title: url, Body: body}
			if err := deps.Index.IndexDocuments(ctx, []*models.IndexDocument{doc}); err != nil {
				return nil, err
			}
			return map[string]any{"indexed": 1, "url": url}, nil
		},
	})

	reg.RegisterTool(&Tool{
		Name:        "search_index",
		Description: "Search the hybrid index, alias of retrieve in index mode.",
		Schema:      objSchema(map[string]any{"query": strProp("search text"), "k": numProp("max results")}, "query"),
		Annotations: ToolAnnotations{Title: "Search Index", ReadOnlyHint: true},
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			query, _ := args["query"].(string)
			return deps.Index.Search(ctx, query, intOr(args["k"], 10), hybridindex.Scope{})
		},
	})

	reg.RegisterTool(&Tool{
		Name:        "index_status",
		Description: "Return the hybrid index document count and average document length; no readiness flag is reported.",
		Schema:      objSchema(map[string]any{}),
		Annotations: ToolAnnotations{Title: "Index Status", ReadOnlyHint: true},
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			count, err := deps.Repos.Index.DocumentCount(ctx)
			if err != nil {
				return nil, err
			}
			avgLen, err := deps.Repos.Index.AverageDocLength(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"document_count": count, "average_doc_length": avgLen}, nil
		},
	})
}

func registerCatalogTools(reg *Registry, deps Dependencies) {
	reg.RegisterTool(&Tool{
		Name:        "list_models",
		Description: "List models available on the federated LLM gateway.",
		Schema:      objSchema(map[string]any{"refresh": boolProp("bypass the catalog TTL cache")}),
		Annotations: ToolAnnotations{Title: "List Models", ReadOnlyHint: true},
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			models, err := deps.Gateway.ListModels(ctx, boolOr(args["refresh"], false))
			if err != nil {
				return nil, err
			}
			return map[string]any{"models": models}, nil
		},
	})

	reg.RegisterTool(&Tool{
		Name:        "get_server_status",
		Description: "Return server liveness, uptime, and usage totals.",
		Schema:      objSchema(map[string]any{}),
		AlwaysOn:    true,
		Annotations: ToolAnnotations{Title: "Server Status", ReadOnlyHint: true},
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			promptTok, completionTok, totalTok, cost, err := deps.Repos.Usage.SumUsage(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"status":      "ok",
				"uptime":      time.Since(deps.Started).String(),
				"version":     version.Get(),
				"usage": map[string]any{
					"prompt_tokens":     promptTok,
					"completion_tokens": completionTok,
					"total_tokens":      totalTok,
					"cost_usd":          cost,
				},
			}, nil
		},
	})

	reg.RegisterTool(&Tool{
		Name:        "list_tools",
		Description: "List every registered tool name; the server mode is not applied.",
		Schema:      objSchema(map[string]any{}),
		Annotations: ToolAnnotations{Title: "List Tools", ReadOnlyHint: true},
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			var names []string
			for _, t := range reg.Tools() {
				names = append(names, t.Name)
			}
			return map[string]any{"tools": names}, nil
		},
	})

	reg.RegisterTool(&Tool{
		Name:        "search_tools",
		Description: "Search registered tools by name or description substring.",
		Schema:      objSchema(map[string]any{"query": strProp("substring to match")}, "query"),
		Annotations: ToolAnnotations{Title: "Search Tools", ReadOnlyHint: true},
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			query := strings.ToLower(stringOr(args["query"], ""))
			var out []map[string]any
			for _, t := range reg.Tools() {
				if query == "" || strings.Contains(strings.ToLower(t.Name), query) || strings.Contains(strings.ToLower(t.Description), query) {
					out = append(out, map[string]any{"name": t.Name, "description": t.Description})
				}
			}
			return map[string]any{"tools": out}, nil
		},
	})
}

// agentUnifiedTool is AGENT mode's single entry point: it routes by
// action to research, retrieve, or a follow-up against an existing job
// (§6 "agent {action, query, ...} -- unified entry").
func agentUnifiedTool(deps Dependencies) *Tool {
	return &Tool{
		Name:        "agent",
		Description: "Unified entry point: routes to research, retrieve, or follow-up by action.",
		Schema: objSchema(map[string]any{
			"action": strProp("research | retrieve | follow_up"),
			"query":  strProp("query text"),
			"job_id": strProp("job id, for follow_up"),
		}, "action"),
		Annotations: ToolAnnotations{Title: "Agent", OpenWorldHint: true},
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			action, _ := args["action"].(string)
			switch action {
			case "research":
				res, err := submitResearchJob(ctx, deps, args)
				if err != nil {
					return nil, err
				}
				return jobResponse(res), nil
			case "retrieve":
				query := stringOr(args["query"], "")
				return deps.Index.Search(ctx, query, 10, hybridindex.Scope{})
			case "follow_up":
				id, _ := args["job_id"].(string)
				job, err := deps.Repos.Job.GetJob(ctx, id)
				if err != nil {
					return nil, err
				}
				if job == nil {
					return nil, apierr.New(apierr.CodeNotFound, "job not found: "+id)
				}
				return map[string]any{"job_id": job.ID, "status": job.Status}, nil
			default:
				return nil, apierr.New(apierr.CodeInvalidParams, "unknown action: "+action)
			}
		},
	}
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func boolOr(v any, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

func intOr(v any, def int) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	default:
		return def
	}
}
