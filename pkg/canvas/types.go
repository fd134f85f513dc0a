// Package canvas maps the Canvas LMS REST resources used by the progress report.
package canvas

// User is the user object embedded in an enrollment.
type User struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	SortName  string `json:"sortable_name,omitempty"`
	SISID     string `json:"sis_id,omitempty"`
	SISUserID string `json:"sis_user_id,omitempty"`
}

// Enrollment is a course enrollment as returned by /courses/:id/enrollments.
type Enrollment struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	CourseID  int64  `json:"course_id"`
	Type      string `json:"type"`
	State     string `json:"enrollment_state"`
	SISUserID string `json:"sis_user_id,omitempty"`
	User      User   `json:"user"`
}

// StudentID returns the Canvas id of the enrolled user.
func (e Enrollment) StudentID() int64 {
	if e.User.ID != 0 {
		return e.User.ID
	}
	return e.UserID
}

// SISID returns the institutional id: user.sis_id, then user.sis_user_id,
// then the enrollment's sis_user_id. Empty when none is set.
func (e Enrollment) SISID() string {
	switch {
	case e.User.SISID != "":
		return e.User.SISID
	case e.User.SISUserID != "":
		return e.User.SISUserID
	default:
		return e.SISUserID
	}
}

// CompletionRequirement is the requirement a student has to meet for an item.
type CompletionRequirement struct {
	Type      string   `json:"type"`
	MinScore  *float64 `json:"min_score,omitempty"`
	Completed *bool    `json:"completed,omitempty"`
}

// ContentDetails carries the optional item details requested with include[]=content_details.
type ContentDetails struct {
	DueAt          *string  `json:"due_at,omitempty"`
	PointsPossible *float64 `json:"points_possible,omitempty"`
	LockedForUser  bool     `json:"locked_for_user,omitempty"`
}

// ModuleItem is one entry of a module.
type ModuleItem struct {
	ID                    int64                  `json:"id"`
	Title                 string                 `json:"title"`
	Type                  string                 `json:"type"`
	Position              int                    `json:"position"`
	HTMLURL               *string                `json:"html_url,omitempty"`
	CompletionRequirement *CompletionRequirement `json:"completion_requirement,omitempty"`
	ContentDetails        *ContentDetails        `json:"content_details,omitempty"`
}

// HasRequirement reports whether the item counts toward module completion.
func (i ModuleItem) HasRequirement() bool {
	return i.CompletionRequirement != nil
}

// Completed reports whether the student met the item's requirement.
func (i ModuleItem) Completed() bool {
	return i.CompletionRequirement != nil &&
		i.CompletionRequirement.Completed != nil &&
		*i.CompletionRequirement.Completed
}

// DueAt returns the item's due date when Canvas sent one.
func (i ModuleItem) DueAt() *string {
	if i.ContentDetails == nil {
		return nil
	}
	return i.ContentDetails.DueAt
}

// Module is a course module as seen by one student (student_id query parameter).
type Module struct {
	ID       int64        `json:"id"`
	Name     string       `json:"name"`
	Position int          `json:"position"`
	State    string       `json:"state,omitempty"`
	Items    []ModuleItem `json:"items"`
}

// Term is the enrollment term attached with include[]=term.
type Term struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Course is a Canvas course.
type Course struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	CourseCode    string `json:"course_code"`
	CourseFormat  string `json:"course_format,omitempty"`
	WorkflowState string `json:"workflow_state,omitempty"`
	Term          *Term  `json:"term,omitempty"`
}
