// Package config loads the scraper's runtime configuration from the
// environment using the typed GetEnv family (env.GetEnv/GetEnvAsInt).
package config

import (
	"time"

	"github.com/codepr/topicscraper/internal/env"
)

// Config is the fully-resolved runtime configuration.
type Config struct {
	Port                string
	MongoURI            string
	AllowedOrigins      []string
	SearchKeywords      []string
	MaxItemsPerCategory int
	RequestTimeout      time.Duration
	MaxRetries          int
	MaxConcurrentReqs   int
	ScrapeDelayMin      time.Duration
	ScrapeDelayMax      time.Duration
	UsePuppeteer        bool
	RobotsUserAgent     string
	ContentMaxAgeDays   int
	AutoScrapeEnabled   bool
	ScrapeCronSchedule  string
	ProxyHost           string
	ProxyPort           string
	ProxyUsername       string
	ProxyPassword       string
	LogLevel            string
}

// ProxyURL assembles the optional PROXY_HOST/PORT/USERNAME/PASSWORD
// settings of §6 into a single URL usable as an http.Transport proxy.
// Returns "" when ProxyHost is unset.
func (c *Config) ProxyURL() string {
	if c.ProxyHost == "" {
		return ""
	}
	host := c.ProxyHost
	if c.ProxyPort != "" {
		host += ":" + c.ProxyPort
	}
	if c.ProxyUsername != "" {
		auth := c.ProxyUsername
		if c.ProxyPassword != "" {
			auth += ":" + c.ProxyPassword
		}
		return "http://" + auth + "@" + host
	}
	return "http://" + host
}

// Load reads every recognized variable from the environment, falling back
// to documented defaults.
func Load() *Config {
	return &Config{
		Port:                env.GetEnv("PORT", "8080"),
		MongoURI:            env.GetEnv("MONGODB_URI", "mongodb://localhost:27017/scraper"),
		AllowedOrigins:      env.GetEnvAsSlice("ALLOWED_ORIGINS", []string{"*"}, ","),
		SearchKeywords:      env.GetEnvAsSlice("SEARCH_KEYWORDS", []string{"webmethods"}, ","),
		MaxItemsPerCategory: env.GetEnvAsInt("MAX_ITEMS_PER_CATEGORY", 500),
		RequestTimeout:      env.GetEnvAsDuration("REQUEST_TIMEOUT", 30000),
		MaxRetries:          env.GetEnvAsInt("MAX_RETRIES", 3),
		MaxConcurrentReqs:   env.GetEnvAsInt("MAX_CONCURRENT_REQUESTS", 3),
		ScrapeDelayMin:      env.GetEnvAsDuration("SCRAPE_DELAY_MIN", 2000),
		ScrapeDelayMax:      env.GetEnvAsDuration("SCRAPE_DELAY_MAX", 5000),
		UsePuppeteer:        env.GetEnvAsBool("USE_PUPPETEER", false),
		RobotsUserAgent:     env.GetEnv("ROBOTS_USER_AGENT", "*"),
		ContentMaxAgeDays:   env.GetEnvAsInt("CONTENT_MAX_AGE_DAYS", 90),
		AutoScrapeEnabled:   env.GetEnvAsBool("AUTO_SCRAPE_ENABLED", true),
		ScrapeCronSchedule:  env.GetEnv("SCRAPE_CRON_SCHEDULE", "0 */6 * * *"),
		ProxyHost:           env.GetEnv("PROXY_HOST", ""),
		ProxyPort:           env.GetEnv("PROXY_PORT", ""),
		ProxyUsername:       env.GetEnv("PROXY_USERNAME", ""),
		ProxyPassword:       env.GetEnv("PROXY_PASSWORD", ""),
		LogLevel:            env.GetEnv("LOG_LEVEL", "info"),
	}
}
