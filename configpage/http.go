package configpage

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Headers the host proxy uses to pass the authenticated user.
const (
	HeaderUser   = "X-Remote-User"
	HeaderRights = "X-User-Rights"
)

type submitResponse struct {
	Kind     string            `json:"kind"`
	Action   string            `json:"action"`
	Updates  map[string]string `json:"updates,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
	Errors   []string          `json:"errors,omitempty"`
}

// RegisterRoutes mounts GET and POST handlers for the page on r.
func (p *Page) RegisterRoutes(r gin.IRoutes) {
	path := "/" + p.name
	r.GET(path, p.handleRender)
	r.POST(path, p.handleSubmit)
}

func (p *Page) handleRender(c *gin.Context) {
	query := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}
	body := p.Render(c.Request.Context(), query)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(body))
}

func (p *Page) handleSubmit(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	form := make(map[string]string, len(c.Request.PostForm))
	for key, values := range c.Request.PostForm {
		if len(values) > 0 {
			form[key] = values[0]
		}
	}
	rights, _ := strconv.Atoi(c.GetHeader(HeaderRights))
	res := p.HandleSubmit(c.Request.Context(), form, c.GetHeader(HeaderUser), rights)
	c.JSON(http.StatusOK, submitResponse{
		Kind:     res.Kind.String(),
		Action:   res.Action.String(),
		Updates:  res.Updates,
		Redirect: res.Redirect,
		Errors:   res.Errors,
	})
}
