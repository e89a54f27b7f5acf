package status

import (
	"fmt"
	htmltemplate "html/template"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/PowerDNS/pbz/config"
)

// StartHTTPServer starts the status server on the default mux in the
// background. It does nothing when no address is configured.
func StartHTTPServer(c config.Config) {
	if c.HTTP.Address == "" {
		logrus.Info("HTTP status server disabled")
		return
	}
	logrus.WithField("address", c.HTTP.Address).Info("HTTP status server enabled")
	Register(http.DefaultServeMux, c)
	go func() {
		err := http.ListenAndServe(c.HTTP.Address, nil)
		logrus.Fatalf("HTTP server error: %v", err)
	}()
}

// Register adds the status routes to a mux
func Register(mux *http.ServeMux, c config.Config) {
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/containers/", NewContainerHandler(c))
	mux.Handle("/", &Page{
		c: c,
	})
}

type Page struct {
	c config.Config
}

const statusTemplateString = `<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<title>PBZ Status</title>
	<style>
		body          { font-family: sans-serif; }
		table, td, th { border: 1px solid #ccc; border-collapse: collapse; }
		td, th        { padding: 5px; text-align: left; }
		td.size       { text-align: right; }
		td.error      { background-color: #ffb8b8; }
		a             { text-decoration: none; color: #3c6ac5; }
	</style>
</head>
<body>
	<h1>PBZ Status</h1>
	<p>
		<a href="/metrics">Prometheus metrics</a> |
		<a href="/healthz">Health</a> |
		<a href="/containers/">Containers (JSON)</a>
	</p>

	<h2>Containers</h2>
	{{ if .Listing.Err }}
	<table><tr><td class="error">Last listing failed: {{ .Listing.Err }}</td></tr></table>
	{{ end }}
	{{ if .Listing.Time.IsZero }}
	<p>Not listed yet</p>
	{{ else }}
	<p>Listed at {{ .Listing.Time.Format "2006-01-02 15:04:05 MST" }}</p>
	<table>
		<tr><th>Name</th><th>Size</th></tr>
		{{ range .Listing.Containers }}
		<tr>
			<td><a href="/containers/{{ .Name }}">{{ .Name }}</a></td>
			<td class="size">{{ .Size }}</td>
		</tr>
		{{ end }}
	</table>
	{{ end }}

	<h2>Config</h2>
	<pre>{{ .Config.String }}</pre>

</body>
</html>`

var statusTemplate *htmltemplate.Template

func init() {
	var err error
	statusTemplate, err = htmltemplate.New("status").Parse(statusTemplateString)
	if err != nil {
		log.Fatalf("BUG: Error in status HTML template: %v", err)
	}
}

func (p *Page) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := struct {
		Config  config.Config
		Listing Listing
	}{
		Config:  p.c,
		Listing: LastListing(),
	}

	err := statusTemplate.Execute(w, data)
	if err != nil {
		w.WriteHeader(500)
		_, _ = w.Write([]byte(fmt.Sprintf("Template execution error: %v", err)))
	}
}
