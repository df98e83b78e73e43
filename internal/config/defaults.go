package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5001
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = 120
	}
	if cfg.Storage.VectorsPath == "" {
		cfg.Storage.VectorsPath = "vectors.json"
	}
	if cfg.Storage.CatalogPath == "" {
		cfg.Storage.CatalogPath = "catalog.db"
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-ada-002"
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 5
	}
	if cfg.Embedding.TimeoutSecs == 0 {
		cfg.Embedding.TimeoutSecs = 30
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = cfg.Embedding.BaseURL
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = cfg.Embedding.APIKeyEnv
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4"
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 60
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 5
	}
	if cfg.Search.ChunkSize == 0 {
		cfg.Search.ChunkSize = 1000
	}
	if cfg.Search.ChunkOverlap == 0 {
		cfg.Search.ChunkOverlap = 200
	}
	if cfg.Search.Extensions == nil {
		cfg.Search.Extensions = []string{".md", ".txt"}
	}
	if cfg.Slack.BotTokenEnv == "" {
		cfg.Slack.BotTokenEnv = "SLACK_BOT_TOKEN"
	}
	if cfg.Slack.AppTokenEnv == "" {
		cfg.Slack.AppTokenEnv = "SLACK_APP_TOKEN"
	}
	if cfg.Slack.AskCommand == "" {
		cfg.Slack.AskCommand = "/ask-primr"
	}
	if cfg.Slack.StatusCommand == "" {
		cfg.Slack.StatusCommand = "/primr-status"
	}
}
