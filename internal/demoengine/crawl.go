package demoengine

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sharonmee/OpenEye/internal/logging"
	"github.com/Sharonmee/OpenEye/internal/scan"
)

// crawl walks same-host links breadth-first from target, runs passive checks
// on every response and records the findings under the original target URL.
func (e *DemoEngine) crawl(p *phase, handle, target string) {
	defer func() {
		e.mu.Lock()
		p.done = true
		e.mu.Unlock()
	}()

	root, err := url.Parse(target)
	if err != nil {
		e.logger.Warn("crawl target unparseable",
			logging.Field{Key: "target", Value: target},
			logging.Field{Key: "error", Value: err.Error()})
		return
	}

	queue := []string{target}
	visited := make(map[string]bool)
	seen := make(map[string]bool) // alert name + url dedupe

	for len(queue) > 0 && len(visited) < e.cfg.MaxPages {
		e.mu.Lock()
		stopped := p.stopped
		e.mu.Unlock()
		if stopped {
			return
		}

		pageURL := queue[0]
		queue = queue[1:]
		if visited[pageURL] {
			continue
		}
		visited[pageURL] = true

		resp, err := e.client.Get(pageURL)
		if err != nil {
			e.logger.Debug("crawl fetch failed",
				logging.Field{Key: "url", Value: pageURL},
				logging.Field{Key: "error", Value: err.Error()})
			continue
		}

		for _, alert := range passiveChecks(pageURL, resp) {
			key := alert.Name + "|" + alert.URL
			if seen[key] {
				continue
			}
			seen[key] = true
			e.mu.Lock()
			e.alerts[target] = append(e.alerts[target], alert)
			e.mu.Unlock()
		}

		links := extractLinks(resp, root)
		resp.Body.Close()
		for _, l := range links {
			if !visited[l] {
				queue = append(queue, l)
			}
		}
	}

	e.logger.Info("crawl finished",
		logging.Field{Key: "handle", Value: handle},
		logging.Field{Key: "pages", Value: len(visited)})
}

// extractLinks pulls same-host anchor targets out of an HTML response.
func extractLinks(resp *http.Response, root *url.URL) []string {
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		u, err := root.Parse(href)
		if err != nil {
			return
		}
		if u.Host != root.Host || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		u.Fragment = ""
		links = append(links, u.String())
	})
	return links
}

// passiveChecks inspects one response for the header and cookie weaknesses
// the demo reports on.
func passiveChecks(pageURL string, resp *http.Response) []scan.Alert {
	var alerts []scan.Alert
	h := resp.Header

	if h.Get("Content-Security-Policy") == "" {
		alerts = append(alerts, scan.Alert{
			Risk:        scan.RiskMedium,
			Name:        "Content Security Policy (CSP) Header Not Set",
			URL:         pageURL,
			Description: "The response does not set a Content-Security-Policy header.",
			Solution:    "Set a restrictive Content-Security-Policy header on all pages.",
		})
	}
	if h.Get("X-Frame-Options") == "" {
		alerts = append(alerts, scan.Alert{
			Risk:        scan.RiskMedium,
			Name:        "Missing Anti-clickjacking Header",
			URL:         pageURL,
			Description: "The response does not protect against framing with X-Frame-Options.",
			Solution:    "Set X-Frame-Options to DENY or SAMEORIGIN.",
		})
	}
	if h.Get("X-Content-Type-Options") == "" {
		alerts = append(alerts, scan.Alert{
			Risk:        scan.RiskLow,
			Name:        "X-Content-Type-Options Header Missing",
			URL:         pageURL,
			Description: "The response allows MIME sniffing.",
			Solution:    "Set X-Content-Type-Options to nosniff.",
		})
	}
	if strings.HasPrefix(pageURL, "https://") && h.Get("Strict-Transport-Security") == "" {
		alerts = append(alerts, scan.Alert{
			Risk:        scan.RiskLow,
			Name:        "Strict-Transport-Security Header Not Set",
			URL:         pageURL,
			Description: "The HTTPS response does not enforce transport security.",
			Solution:    "Set a Strict-Transport-Security header with a long max-age.",
		})
	}
	if server := h.Get("Server"); server != "" {
		alerts = append(alerts, scan.Alert{
			Risk:        scan.RiskInformational,
			Name:        "Server Leaks Version Information",
			URL:         pageURL,
			Evidence:    server,
			Description: "The Server header reveals the software serving this page.",
			Solution:    "Suppress or genericize the Server header.",
		})
	}
	for _, c := range resp.Cookies() {
		if !c.HttpOnly {
			alerts = append(alerts, scan.Alert{
				Risk:        scan.RiskLow,
				Name:        "Cookie Without HttpOnly Flag",
				URL:         pageURL,
				Param:       c.Name,
				Description: "A cookie is readable from page scripts.",
				Solution:    "Mark session cookies HttpOnly.",
			})
		}
	}
	return alerts
}
