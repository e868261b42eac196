package config

// GetDefaultConfigTOML returns a commented configuration file with every
// option set to its default, written by `deckforge config init`
func GetDefaultConfigTOML() string {
	return `# deckforge configuration

[backend]
# Base URL of the generation service (DECKFORGE_API_URL overrides this)
base_url = "http://localhost:8000"
# HTTP timeout in seconds; outline generation can take a while
timeout_seconds = 120
# Client-side cap on requests per minute
rate_limit_per_minute = 300
# Retries for idempotent reads such as the model list (-1 disables)
max_retries = 3
base_retry_delay_ms = 500

[poller]
# How often job status is queried
interval_ms = 1000
# Consecutive failed status queries before a job is reported as failed (-1 = never give up)
max_failures = 30

[defaults]
model = "gpt-4o"
# business, tech or creative
theme = "business"
# 5 to 30
slide_count = 10
target_format = "pdf"

[output]
dir = "output"
`
}
