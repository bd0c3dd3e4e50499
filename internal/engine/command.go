package engine

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/capturelab/scoopd/config"
	"github.com/capturelab/scoopd/internal/domain/model"
)

// Tool defaults applied when the deployment does not configure a limit.
const (
	defaultCaptureTimeoutMs   = 60000
	defaultLoadTimeoutMs      = 20000
	defaultIdleTimeoutMs      = 20000
	defaultBehaviorsTimeoutMs = 20000
	defaultVideoTimeoutMs     = 30000
	defaultCertsTimeoutMs     = 10000
	defaultMaxCaptureSize     = 209715200
	defaultWindowX            = "1600"
	defaultWindowY            = "900"
)

type commandOption struct {
	key   string
	value string
}

// BuildCommand assembles the capture tool invocation for one job. Options
// with empty values are omitted, so the tool's own defaults apply wherever
// neither the job nor the deployment sets a value.
func BuildCommand(job *model.CaptureJob, cfg *config.CaptureConfig, outputDir string) CommandSpec {
	archivePath := filepath.Join(outputDir, job.ID+".wacz")
	summaryPath := filepath.Join(outputDir, "summary.json")

	format := "wacz"
	if job.Options.IncludeRawExchanges {
		format = "wacz-with-raw"
	}

	// Per-job video extraction can be vetoed deployment-wide. The veto is
	// an explicit "false" rather than an omission, overriding tool defaults.
	videoAsAttachment := boolOption(job.Options.IncludeVideosAsAttachment)
	if !cfg.AllowVideoAsAttachment {
		videoAsAttachment = "false"
	}

	// Headful browsing needs deployment-level permission. Without it the
	// browser is forced headless no matter what the job asked for.
	headless := boolOption(job.Options.Headless)
	if !cfg.AllowHeadful {
		headless = "true"
	}

	windowX, windowY := parseWindowSize(cfg.WindowSize)

	url := ""
	if job.ValidatedURL != nil {
		url = *job.ValidatedURL
	}

	options := []commandOption{
		{"output", archivePath},
		{"json-summary-output", summaryPath},
		{"export-attachments-output", outputDir},
		{"format", format},
		{"screenshot", boolOption(job.Options.IncludeScreenshot)},
		{"pdf-snapshot", boolOption(job.Options.IncludePDFSnapshot)},
		{"dom-snapshot", boolOption(job.Options.IncludeDOMSnapshot)},
		{"capture-video-as-attachment", videoAsAttachment},
		{"capture-certificates-as-attachment", boolOption(job.Options.IncludeCertificatesAsAttachment)},
		{"provenance-summary", "true"},
		{"attachments-bypass-limits", "true"},
		{"capture-timeout", msOption(cfg.MaxRecording, defaultCaptureTimeoutMs)},
		{"load-timeout", msOption(cfg.MaxPageLoad, defaultLoadTimeoutMs)},
		{"network-idle-timeout", msOption(cfg.MaxNetworkIdle, defaultIdleTimeoutMs)},
		{"behaviors-timeout", msOption(cfg.MaxBrowserBehaviors, defaultBehaviorsTimeoutMs)},
		{"capture-video-as-attachment-timeout", msOption(cfg.MaxVideoAsAttachment, defaultVideoTimeoutMs)},
		{"capture-certificates-as-attachment-timeout", msOption(cfg.MaxCertsAsAttachment, defaultCertsTimeoutMs)},
		{"capture-window-x", windowX},
		{"capture-window-y", windowY},
		{"max-capture-size", sizeOption(cfg.MaxCaptureSize)},
		{"auto-scroll", "true"},
		{"auto-play-media", "true"},
		{"grab-secondary-resources", "true"},
		{"run-site-specific-behaviors", boolOption(job.Options.RunSiteSpecificBehaviors)},
		{"headless", headless},
		{"user-agent-suffix", cfg.UserAgentSuffix},
		{"blocklist", cfg.Blocklist},
		{"proxy-port", portOption(cfg.ProxyPort)},
		{"log-level", cfg.LogLevel},
	}

	args := append([]string{}, cfg.Args...)
	args = append(args, url)
	for _, opt := range options {
		if opt.value == "" {
			continue
		}
		args = append(args, "--"+opt.key, opt.value)
	}

	return CommandSpec{
		Command:     cfg.Command,
		Args:        args,
		OutputDir:   outputDir,
		ArchivePath: archivePath,
		SummaryPath: summaryPath,
	}
}

// boolOption renders true as "true" and false as absent, matching the
// omit-when-falsy convention of the tool's CLI.
func boolOption(v bool) string {
	if v {
		return "true"
	}
	return ""
}

func msOption(d time.Duration, fallbackMs int64) string {
	if d > 0 {
		return strconv.FormatInt(d.Milliseconds(), 10)
	}
	return strconv.FormatInt(fallbackMs, 10)
}

// portOption renders a positive port and omits a zero one.
func portOption(port int) string {
	if port > 0 {
		return strconv.Itoa(port)
	}
	return ""
}

func sizeOption(size int64) string {
	if size > 0 {
		return strconv.FormatInt(size, 10)
	}
	return strconv.FormatInt(defaultMaxCaptureSize, 10)
}

func parseWindowSize(size string) (string, string) {
	parts := strings.SplitN(size, "x", 2)
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return parts[0], parts[1]
	}
	return defaultWindowX, defaultWindowY
}
