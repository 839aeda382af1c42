package bitbucket

import (
	"time"

	"github.com/jacklau/bbtrack/internal/tracker"
)

// page is the envelope of every paginated Bitbucket 2.0 response.
type page[T any] struct {
	Size    int    `json:"size"`
	Page    int    `json:"page"`
	PageLen int    `json:"pagelen"`
	Next    string `json:"next"`
	Values  []T    `json:"values"`
}

type account struct {
	Username    string `json:"username"`
	Nickname    string `json:"nickname"`
	DisplayName string `json:"display_name"`
	UUID        string `json:"uuid"`
}

func (a *account) toTracker() *tracker.Account {
	if a == nil {
		return nil
	}
	username := a.Username
	if username == "" {
		username = a.Nickname
	}
	return &tracker.Account{Username: username, DisplayName: a.DisplayName, UUID: a.UUID}
}

type branch struct {
	Name string `json:"name"`
}

type repository struct {
	SCM         string    `json:"scm"`
	Owner       *account  `json:"owner"`
	Name        string    `json:"name"`
	UUID        string    `json:"uuid"`
	FullName    string    `json:"full_name"`
	Description string    `json:"description"`
	MainBranch  *branch   `json:"mainbranch"`
	IsPrivate   bool      `json:"is_private"`
	HasIssues   bool      `json:"has_issues"`
	CreatedOn   time.Time `json:"created_on"`
	UpdatedOn   time.Time `json:"updated_on"`
}

type content struct {
	Raw    string `json:"raw"`
	Markup string `json:"markup"`
	HTML   string `json:"html"`
}

type issue struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	Kind      string    `json:"kind"`
	Priority  string    `json:"priority"`
	Reporter  *account  `json:"reporter"`
	Assignee  *account  `json:"assignee"`
	Content   content   `json:"content"`
	Votes     int       `json:"votes"`
	CreatedOn time.Time `json:"created_on"`
	UpdatedOn time.Time `json:"updated_on"`
}

func (i *issue) toTracker() *tracker.Issue {
	return &tracker.Issue{
		ID:        i.ID,
		Title:     i.Title,
		State:     i.State,
		Kind:      i.Kind,
		Priority:  i.Priority,
		Reporter:  i.Reporter.toTracker(),
		Assignee:  i.Assignee.toTracker(),
		Content:   tracker.Content{Raw: i.Content.Raw, Markup: i.Content.Markup, HTML: i.Content.HTML},
		Votes:     i.Votes,
		CreatedAt: i.CreatedOn,
		UpdatedAt: i.UpdatedOn,
	}
}

// apiError is the body Bitbucket returns with 4xx and 5xx responses.
type apiError struct {
	Type  string `json:"type"`
	Error struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	} `json:"error"`
}
