package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"strata-netmon/internal/service"
)

const showTimeout = 10 * time.Second

// ShowOptions configure the show command.
type ShowOptions struct {
	URL string
}

// Show prints the freshness of every domain as reported by a running instance.
func (a *App) Show(ctx context.Context, w io.Writer, opts ShowOptions) error {
	base := strings.TrimRight(opts.URL, "/")
	if base == "" {
		base = "http://" + localAddr(a.Config.Server.Addr())
	}

	ctx, cancel := context.WithTimeout(ctx, showTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("query health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("query health: status %d", resp.StatusCode)
	}

	var report service.HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return fmt.Errorf("decode health: %w", err)
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Domain\tPoller\tFailures\tFetched (UTC)\tAttempted (UTC)\tError")
	for _, d := range report.Domains {
		errMsg := ""
		if d.LastError != nil {
			errMsg = d.LastError.Kind + ": " + sanitizeInline(d.LastError.Message)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%s\t%s\t%s\n",
			d.Domain,
			d.PollerState,
			d.ConsecutiveFailures,
			formatTime(d.FetchedAt),
			formatTime(d.AttemptedAt),
			errMsg,
		)
	}
	return writer.Flush()
}

// localAddr turns a wildcard listen address into one a client can dial.
func localAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "127.0.0.1" + addr
	}
	return addr
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
