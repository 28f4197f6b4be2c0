package postgresql

// migrations returns the schema migrations keyed by version. Workflows,
// campaigns and contacts are stored as JSONB documents; inbound messages,
// sent audits and run state get real columns because the engine queries them
// by field.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id TEXT PRIMARY KEY,
				function_name TEXT,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_workflows_function_name ON workflows (function_name);

			CREATE TABLE IF NOT EXISTS campaigns (
				id TEXT PRIMARY KEY,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS contacts (
				id TEXT PRIMARY KEY,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);
		`,
		2: `
			CREATE TABLE IF NOT EXISTS inbound_messages (
				id TEXT PRIMARY KEY,
				platform TEXT NOT NULL,
				contact_id TEXT,
				identifier TEXT,
				campaign_id TEXT,
				content TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_inbound_contact ON inbound_messages (contact_id, platform, created_at);
			CREATE INDEX IF NOT EXISTS idx_inbound_identifier ON inbound_messages (identifier, platform, created_at);

			CREATE TABLE IF NOT EXISTS sent_records (
				id TEXT PRIMARY KEY,
				campaign_id TEXT NOT NULL,
				contact_id TEXT NOT NULL,
				channel TEXT NOT NULL,
				sent_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_sent_campaign ON sent_records (campaign_id);
		`,
		3: `
			CREATE TABLE IF NOT EXISTS run_states (
				campaign_id TEXT NOT NULL,
				contact_id TEXT NOT NULL,
				workflow_id TEXT NOT NULL DEFAULT '',
				current_node_id TEXT NOT NULL DEFAULT '',
				visited_node_ids JSONB NOT NULL DEFAULT '[]',
				last_executed_at TIMESTAMP WITH TIME ZONE,
				status TEXT NOT NULL DEFAULT 'running',
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (campaign_id, contact_id)
			);
			CREATE INDEX IF NOT EXISTS idx_run_states_status ON run_states (status);
		`,
	}
}
