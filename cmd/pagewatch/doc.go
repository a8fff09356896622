// Command pagewatch runs one pass of the page monitor.
//
// Configuration comes from an optional YAML file (--config), a .env file and
// PAGEWATCH_* environment variables. The bare names URL, SUBSCRIBE,
// TELEGRAM_BOT_TOKEN, TELEGRAM_CHANNEL_ID and TELEGRAM_LOG_CHANNEL_ID are
// honoured as well.
//
//	pagewatch run --config pagewatch.yaml
package main
