package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Event is a school calendar entry shown on the home feed.
type Event struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	Venue       string     `json:"venue,omitempty"`
}

// Class is a section the actor is enrolled in or teaches.
type Class struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Section     string `json:"section,omitempty"`
	Teacher     string `json:"teacher,omitempty"`
	Schedule    string `json:"schedule,omitempty"`
	SubjectCode string `json:"subject_code,omitempty"`
}

// Activity is an assignment, quiz or survey.
type Activity struct {
	ID          int64      `json:"id"`
	ClassID     int64      `json:"class_id"`
	Title       string     `json:"title"`
	Type        string     `json:"type"`
	Instruction string     `json:"instruction,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Points      int        `json:"points,omitempty"`
	Submitted   bool       `json:"submitted"`
	Score       *float64   `json:"score,omitempty"`
}

// ClassActivity is a row of the per-class activity list.
type ClassActivity struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Type       string     `json:"type"`
	DueAt      *time.Time `json:"due_at,omitempty"`
	Submitted  int        `json:"submitted_count"`
	TotalCount int        `json:"student_count"`
}

// WallPost is one post on a class wall.
type WallPost struct {
	ID        int64     `json:"id"`
	ClassID   int64     `json:"class_id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Comments  int       `json:"comments_count"`
}

// WallPage is one page of a class wall.
type WallPage struct {
	Posts       []WallPost
	CurrentPage int
	LastPage    int
}

func id(v int64) string { return strconv.FormatInt(v, 10) }

// Events returns the calendar events visible to user.
func (c *Client) Events(ctx context.Context, userID int64) ([]Event, error) {
	events, _, err := get[[]Event](ctx, c, "/users/"+id(userID)+"/events", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching events: %w", err)
	}
	return events, nil
}

// Classes returns the classes of user.
func (c *Client) Classes(ctx context.Context, userID int64) ([]Class, error) {
	classes, _, err := get[[]Class](ctx, c, "/users/"+id(userID)+"/classes", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching classes: %w", err)
	}
	return classes, nil
}

// Activities returns user's activities in one class, with submission state.
func (c *Client) Activities(ctx context.Context, userID, classID int64) ([]Activity, error) {
	acts, _, err := get[[]Activity](ctx, c, "/users/"+id(userID)+"/classes/"+id(classID)+"/activities", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching activities: %w", err)
	}
	return acts, nil
}

// ClassActivities returns the activity list of a class.
func (c *Client) ClassActivities(ctx context.Context, classID int64) ([]ClassActivity, error) {
	acts, _, err := get[[]ClassActivity](ctx, c, "/classes/"+id(classID)+"/activities", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching class activities: %w", err)
	}
	return acts, nil
}

// ClassWall returns one page (1-based) of a class wall.
func (c *Client) ClassWall(ctx context.Context, classID int64, page int) (*WallPage, error) {
	if page < 1 {
		page = 1
	}
	q := url.Values{"page": {strconv.Itoa(page)}}
	posts, meta, err := get[[]WallPost](ctx, c, "/classes/"+id(classID)+"/wall", q)
	if err != nil {
		return nil, fmt.Errorf("fetching class wall: %w", err)
	}

	wp := &WallPage{Posts: posts, CurrentPage: page, LastPage: page}
	if meta != nil {
		if meta.CurrentPage > 0 {
			wp.CurrentPage = meta.CurrentPage
		}
		wp.LastPage = meta.LastPage
	}
	return wp, nil
}

// Activity returns one activity by id.
func (c *Client) Activity(ctx context.Context, activityID int64) (*Activity, error) {
	act, _, err := get[Activity](ctx, c, "/activities/"+id(activityID), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching activity %d: %w", activityID, err)
	}
	return &act, nil
}
