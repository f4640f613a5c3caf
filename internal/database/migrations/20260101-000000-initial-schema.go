package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260101-000000",
		Description: "Initial schema",
		Up: []string{
			// Jobs - async research jobs (C5 Job Engine)
			`CREATE TABLE IF NOT EXISTS jobs (
				id TEXT PRIMARY KEY,
				type TEXT NOT NULL DEFAULT 'research',
				status TEXT NOT NULL DEFAULT 'queued',
				params_json TEXT NOT NULL,
				idempotency_key TEXT,
				idempotency_expires_at TEXT,
				retry_of TEXT REFERENCES jobs(id) ON DELETE SET NULL,
				lease_owner TEXT,
				lease_expires_at TEXT,
				attempt INTEGER NOT NULL DEFAULT 0,
				result_json TEXT,
				error_message TEXT,
				webhook_url TEXT,
				heartbeat_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_idempotency ON jobs(idempotency_key, idempotency_expires_at)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_lease ON jobs(status, heartbeat_at)`,

			// Job events - append-only per-job event log
			`CREATE TABLE IF NOT EXISTS job_events (
				job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
				event_id INTEGER NOT NULL,
				type TEXT NOT NULL,
				payload_json TEXT,
				created_at TEXT NOT NULL,
				PRIMARY KEY (job_id, event_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_job_events_job ON job_events(job_id, event_id)`,

			// Webhook deliveries - outbound job-terminal-state notifications
			`CREATE TABLE IF NOT EXISTS webhook_deliveries (
				id TEXT PRIMARY KEY,
				job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
				url TEXT NOT NULL,
				event_type TEXT NOT NULL,
				payload_json TEXT NOT NULL,
				status_code INTEGER,
				status TEXT NOT NULL DEFAULT 'pending',
				error_message TEXT,
				attempt_number INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL,
				delivered_at TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_job ON webhook_deliveries(job_id)`,

			// Reports - persistent, immutable record of completed research (C1)
			`CREATE TABLE IF NOT EXISTS reports (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				query TEXT NOT NULL,
				output_markdown TEXT NOT NULL,
				sources_json TEXT NOT NULL DEFAULT '[]',
				metadata_json TEXT NOT NULL DEFAULT '{}',
				embedding BLOB,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at)`,

			// Index documents - hybrid BM25+vector index (C4)
			`CREATE TABLE IF NOT EXISTS index_documents (
				id TEXT PRIMARY KEY,
				origin TEXT NOT NULL,
				title TEXT,
				body TEXT NOT NULL,
				token_count INTEGER NOT NULL DEFAULT 0,
				embedding BLOB,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_index_documents_origin ON index_documents(origin)`,

			// Inverted postings list backing BM25 scoring.
			`CREATE TABLE IF NOT EXISTS index_postings (
				term TEXT NOT NULL,
				doc_id TEXT NOT NULL REFERENCES index_documents(id) ON DELETE CASCADE,
				term_freq INTEGER NOT NULL,
				PRIMARY KEY (term, doc_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_index_postings_term ON index_postings(term)`,

			// Sessions - per-transport conversational state (§3 Session)
			`CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				transport TEXT NOT NULL,
				protocol_version TEXT,
				client_info_json TEXT,
				capabilities_json TEXT,
				resume_cursor INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				last_seen_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_last_seen ON sessions(last_seen_at)`,

			// Usage counters - token/cost tracking per model per job/report
			`CREATE TABLE IF NOT EXISTS usage_counters (
				id TEXT PRIMARY KEY,
				model TEXT NOT NULL,
				job_id TEXT REFERENCES jobs(id) ON DELETE SET NULL,
				report_id INTEGER REFERENCES reports(id) ON DELETE SET NULL,
				prompt_tokens INTEGER NOT NULL DEFAULT 0,
				completion_tokens INTEGER NOT NULL DEFAULT 0,
				total_tokens INTEGER NOT NULL DEFAULT 0,
				cost_usd REAL NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_usage_counters_model ON usage_counters(model)`,
			`CREATE INDEX IF NOT EXISTS idx_usage_counters_job ON usage_counters(job_id)`,
		},
	})
}
