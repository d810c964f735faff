package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// serveStatic serves the staff site under /staff/ and the customer site
// everywhere else. Unknown /api paths stay JSON 404s.
func (a *API) serveStatic(c *gin.Context) {
	p := c.Request.URL.Path
	if strings.HasPrefix(p, "/api/") || (c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
		return
	}

	if p == "/staff" && a.deps.StaffSiteDir != "" {
		c.Redirect(http.StatusMovedPermanently, "/staff/")
		return
	}

	dir := a.deps.CustomerSiteDir
	if strings.HasPrefix(p, "/staff/") {
		dir = a.deps.StaffSiteDir
		p = strings.TrimPrefix(p, "/staff")
	}
	if dir == "" {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
		return
	}

	file := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+p)))
	info, err := os.Stat(file)
	if err == nil && info.IsDir() {
		file = filepath.Join(file, "index.html")
		info, err = os.Stat(file)
	}
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
		return
	}
	c.File(file)
}
