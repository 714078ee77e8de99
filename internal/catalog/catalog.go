package catalog

// Catalog maps course ids to human-readable titles. It is injected into
// the webhook handler at construction time so catalog data can be swapped
// without touching handler code.
type Catalog struct {
	titles map[string]string
}

// New creates a catalog from a courseId -> title mapping.
func New(titles map[string]string) *Catalog {
	copied := make(map[string]string, len(titles))
	for id, title := range titles {
		copied[id] = title
	}
	return &Catalog{titles: copied}
}

// Default returns the built-in course catalog.
func Default() *Catalog {
	return New(map[string]string{
		"ai-building-course":     "AI 건물주 되기",
		"chatgpt-agent-beginner": "AI 에이전트 비기너",
		"vibe-coding":            "바이브코딩",
		"solo-business":          "AI 1인 기업 만들기",
	})
}

// Title returns the display title for a course, falling back to the raw
// id when the course is not in the catalog. An unknown course is not an
// error.
func (c *Catalog) Title(courseID string) string {
	if title, ok := c.titles[courseID]; ok {
		return title
	}
	return courseID
}

// Has reports whether the course id is known to the catalog.
func (c *Catalog) Has(courseID string) bool {
	_, ok := c.titles[courseID]
	return ok
}
