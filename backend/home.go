package backend

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"
)

//go:embed templates/*.html
var pagesFS embed.FS

func parsePages() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"timeAgo": timeAgo,
		"deref":   func(n *int32) int32 { return *n },
	}).ParseFS(pagesFS, "templates/*.html")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s ago", n, unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// timeAgo formats how long before now t was.
func timeAgo(t, now time.Time) string {
	seconds := int64(now.Sub(t) / time.Second)
	if seconds < 60 {
		return fmt.Sprintf("%d seconds ago", seconds)
	}

	minutes := seconds / 60
	if minutes < 60 {
		return plural(minutes, "minute")
	}

	hours := minutes / 60
	if hours < 24 {
		return plural(hours, "hour")
	}

	return plural(hours/24, "day")
}

func (s *AppServer) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("Template error", "template", name, "error", err)
		http.Error(w, "Render error", http.StatusInternalServerError)
	}
}

// HomeHandler renders the product feed. The view query parameter resumes an open feed view; otherwise a new
// view is opened.
func (s *AppServer) HomeHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	view, ok := env.views.Get(req.URL.Query().Get("view"))
	if !ok {
		var err error
		view, err = env.views.Open(req.Context(), env.user)
		if err != nil {
			env.logger.Error("Open feed view failed", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	now := time.Now()
	s.render(w, "home.html", map[string]interface{}{
		"View": view.Snapshot(req.Context(), env.user, now),
		"Now":  now,
	})
}

func (s *AppServer) LoginPageHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	s.render(w, "login.html", nil)
}

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="200" height="200" viewBox="0 0 200 200"><rect width="200" height="200" fill="#e5e7eb"/></svg>`

func PlaceholderImageHandler(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	fmt.Fprint(w, placeholderSVG)
}
