package cache

import (
	"errors"
	"strconv"
	"strings"
)

// Entity prefixes. No prefix may equal another prefix followed by "_" and
// more text, otherwise two entities could derive the same key.
const (
	EntityEvents          = "events"           // scope: user
	EntityClasses         = "classes"          // scope: user
	EntityActivities      = "activities"       // scope: user, class
	EntityClassActivities = "class_activities" // scope: class
	EntityClassWall       = "class_wall"       // scope: class
	EntityActivity        = "activity"         // scope: activity
	EntityAttendance      = "attendance"       // scope: class
)

// Entities lists every registered prefix.
var Entities = []string{
	EntityEvents,
	EntityClasses,
	EntityActivities,
	EntityClassActivities,
	EntityClassWall,
	EntityActivity,
	EntityAttendance,
}

const dateMarker = "date"

// ErrEmptyScope is returned for a scope with no parts or an empty part.
var ErrEmptyScope = errors.New("cache scope is empty")

// Scope is the tuple of identifiers addressing one cached entity.
type Scope []string

// IDs builds a Scope from numeric identifiers.
func IDs(ids ...int64) Scope {
	s := make(Scope, len(ids))
	for i, id := range ids {
		s[i] = strconv.FormatInt(id, 10)
	}
	return s
}

var (
	partEscaper   = strings.NewReplacer("%", "%25", "_", "%5F")
	partUnescaper = strings.NewReplacer("%25", "%", "%5F", "_", "%64", "d")
)

func escapePart(p string) string {
	p = partEscaper.Replace(p)
	if p == dateMarker {
		return "%64ate"
	}
	return p
}

func (s Scope) encode() (string, error) {
	if len(s) == 0 {
		return "", ErrEmptyScope
	}
	escaped := make([]string, len(s))
	for i, p := range s {
		if p == "" {
			return "", ErrEmptyScope
		}
		escaped[i] = escapePart(p)
	}
	return strings.Join(escaped, "_"), nil
}

func decodeScope(encoded string) Scope {
	parts := strings.Split(encoded, "_")
	s := make(Scope, len(parts))
	for i, p := range parts {
		s[i] = partUnescaper.Replace(p)
	}
	return s
}

// Key derives the data key: <entity>_<p1>_<p2>...
func Key(entity string, scope Scope) (string, error) {
	enc, err := scope.encode()
	if err != nil {
		return "", err
	}
	return entity + "_" + enc, nil
}

// DateKey derives the paired timestamp key: <entity>_date_<p1>_<p2>...
func DateKey(entity string, scope Scope) (string, error) {
	enc, err := scope.encode()
	if err != nil {
		return "", err
	}
	return entity + "_" + dateMarker + "_" + enc, nil
}
