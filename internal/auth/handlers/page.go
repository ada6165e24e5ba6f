package handlers

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"sync"

	"github.com/brizzai/tutor-auth/internal/auth/callback"
	"github.com/brizzai/tutor-auth/internal/logger"
	"go.uber.org/zap"
)

type pageKey struct{}

// page collects what one request wants the browser to do next. It is the
// Router and Presenter of a callback mount and the target of pageNavigator.
type page struct {
	mu       sync.Mutex
	location string
	status   callback.Status
	message  string
}

func withPage(ctx context.Context) (context.Context, *page) {
	p := &page{}
	return context.WithValue(ctx, pageKey{}, p), p
}

func (p *page) Replace(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.location = path
}

func (p *page) Show(status callback.Status, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
	p.message = message
}

func (p *page) Location() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location
}

func (p *page) Status() (callback.Status, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.message
}

// pageNavigator sends the whole page to another URL by way of the request's page.
type pageNavigator struct{}

func (pageNavigator) Navigate(ctx context.Context, url string) error {
	p, ok := ctx.Value(pageKey{}).(*page)
	if !ok {
		return errors.New("no page to navigate")
	}
	p.Replace(url)
	return nil
}

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{if .Alert}}<p role="alert">{{.Alert}}</p>{{end}}
{{if .Message}}<p>{{.Message}}</p>{{end}}
{{if .LinkURL}}<p><a href="{{.LinkURL}}">{{.LinkText}}</a></p>{{end}}
{{if .Logout}}<form method="post" action="/logout"><button type="submit">Sign out</button></form>{{end}}
</body>
</html>
`))

type pageData struct {
	Title    string
	Alert    string
	Message  string
	LinkURL  string
	LinkText string
	Logout   bool
}

func renderPage(w http.ResponseWriter, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		logger.Error("Failed to render page", zap.Error(err))
	}
}
