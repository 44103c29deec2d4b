// Package help holds the text printed by `fcr quickstart`.
package help

const ColdstartYAML = `# fcr (factcheck-relay) Quick Start

setup:
  base_url: |
    fcr settings set apiBaseUrl https://api.example.org
    # or: FCR_API_BASE_URL=https://api.example.org fcr ...
  config_file: "config.yaml (optional, --config to change)"
  database: "settings.db in the user config directory (--db to change)"

commands:
  check_text: |
    fcr check text "The Eiffel Tower is in Berlin."
    echo "some claim" | fcr check text -

  check_image: |
    fcr check image https://example.com/photo.jpg

  check_video: |
    fcr check video "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

  backend_health: |
    fcr check health

  passive_scan: |
    fcr scan --urls "https://example.com/a,https://example.com/b"
    fcr scan --article --format json https://example.com/post

  toggles: |
    fcr settings list
    fcr settings set isFactCheckEnabled false
    fcr settings set isBackgroundDetectionEnabled true

  history: |
    fcr history --limit 20
    fcr history --outcome failed --domain example.com
    fcr history show 12
    fcr history stats

  extension_bridge: |
    fcr serve --addr 127.0.0.1:8787

passive_scan:
  - "Runs only when isFactCheckEnabled and isBackgroundDetectionEnabled are both true"
  - "Pages with fewer than 50 characters of visible text are skipped"
  - "Text is truncated to 5000 characters before it is sent"
  - "A warning is shown when accuracy is below 70%"
  - "At most one scan per page load"

failure_classes:
  network_unreachable: "backend could not be reached, check apiBaseUrl"
  endpoint_missing: "backend returned 404, check apiBaseUrl"
  server_error: "backend returned 5xx"
  unexpected_format: "response was not the expected JSON"
  content_forbidden: "backend refused the content"
  download_forbidden: "video could not be downloaded"
  unsupported_media_type: "image format not supported"
  configuration_missing: "apiBaseUrl is not set"
  request_already_in_progress: "a check is already running in this tab"

exit_codes:
  - "0: check succeeded"
  - "1: check failed or was rejected"
`
