package authflow

import (
	"fmt"
	"net/http"
)

func writeHTML(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%[1]s</title></head>
<body>
<h1>%[1]s</h1>
<p>%[2]s</p>
</body>
</html>`, title, message)
}

func writeDonePage(w http.ResponseWriter) {
	writeHTML(w, http.StatusOK, "Pavlok connected", "You can close this window and return to the terminal.")
}

func writeErrorPage(w http.ResponseWriter) {
	writeHTML(w, http.StatusOK, "Pavlok login failed", "Authorization did not complete. Return to the terminal and try again.")
}
