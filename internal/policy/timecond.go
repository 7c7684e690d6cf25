package policy

import (
	"fmt"
	"strings"
	"time"
)

var timeOperators = map[Operator]bool{
	OpBetween: true, OpNotBetween: true, OpEquals: true,
	OpIn: true, OpNotIn: true, OpAfter: true, OpBefore: true,
}

var dayIndex = map[string]int{
	"monday": 0, "tuesday": 1, "wednesday": 2, "thursday": 3,
	"friday": 4, "saturday": 5, "sunday": 6,
}

const dateLayout = "2006-01-02"

// point is an ordinal position on the condition's scale: minute of day,
// Monday-based weekday or a yyyy-mm-dd string.
type point struct {
	n int
	s string
}

func (p point) less(o point) bool {
	if p.s != "" || o.s != "" {
		return p.s < o.s
	}
	return p.n < o.n
}

func parsePoint(attr TimeAttribute, raw string) (point, error) {
	switch attr {
	case AttrTime:
		t, err := time.Parse("15:04", raw)
		if err != nil {
			return point{}, fmt.Errorf("time %q must be HH:MM", raw)
		}
		return point{n: t.Hour()*60 + t.Minute()}, nil
	case AttrDayOfWeek:
		d, ok := dayIndex[strings.ToLower(raw)]
		if !ok {
			return point{}, fmt.Errorf("day %q must be monday..sunday", raw)
		}
		return point{n: d}, nil
	case AttrDate:
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return point{}, fmt.Errorf("date %q must be YYYY-MM-DD", raw)
		}
		return point{s: t.Format(dateLayout)}, nil
	}
	return point{}, fmt.Errorf("unknown time attribute %q", attr)
}

func observe(attr TimeAttribute, local time.Time) point {
	switch attr {
	case AttrTime:
		return point{n: local.Hour()*60 + local.Minute()}
	case AttrDayOfWeek:
		return point{n: (int(local.Weekday()) + 6) % 7}
	default:
		return point{s: local.Format(dateLayout)}
	}
}

func checkTimeCondition(c TimeCondition) error {
	switch c.Attribute {
	case AttrTime, AttrDayOfWeek, AttrDate:
	default:
		return fmt.Errorf("attribute %q must be environment.time, environment.day_of_week or environment.date", c.Attribute)
	}
	if !timeOperators[c.Operator] {
		return fmt.Errorf("operator %q is not supported for time conditions", c.Operator)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("unknown timezone %q", c.Timezone)
		}
	}

	var raw []string
	switch c.Operator {
	case OpBetween, OpNotBetween:
		if len(c.Values) != 2 {
			return fmt.Errorf("operator %s requires exactly two values", c.Operator)
		}
		raw = c.Values
	case OpIn, OpNotIn:
		if len(c.Values) == 0 {
			return fmt.Errorf("operator %s requires values", c.Operator)
		}
		raw = c.Values
	default:
		if c.Value == "" {
			return fmt.Errorf("operator %s requires a value", c.Operator)
		}
		raw = []string{c.Value}
	}

	points := make([]point, 0, len(raw))
	for _, r := range raw {
		p, err := parsePoint(c.Attribute, r)
		if err != nil {
			return err
		}
		points = append(points, p)
	}

	if c.Operator == OpBetween || c.Operator == OpNotBetween {
		start, end := points[0], points[1]
		if start == end && c.Attribute == AttrTime {
			return fmt.Errorf("time window %s-%s is empty", c.Values[0], c.Values[1])
		}
		if c.Attribute == AttrDate && end.less(start) {
			return fmt.Errorf("date range %s-%s ends before it starts", c.Values[0], c.Values[1])
		}
	}
	return nil
}

// Evaluate reports whether now satisfies the condition. fallback is used when
// the condition has no timezone of its own.
func (c TimeCondition) Evaluate(now time.Time, fallback *time.Location) (bool, error) {
	loc := fallback
	if c.Timezone != "" {
		l, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return false, fmt.Errorf("unknown timezone %q", c.Timezone)
		}
		loc = l
	}
	if loc == nil {
		return false, fmt.Errorf("no timezone for %s", c.Attribute)
	}

	cur := observe(c.Attribute, now.In(loc))

	switch c.Operator {
	case OpBetween, OpNotBetween:
		if len(c.Values) != 2 {
			return false, fmt.Errorf("operator %s requires exactly two values", c.Operator)
		}
		start, err := parsePoint(c.Attribute, c.Values[0])
		if err != nil {
			return false, err
		}
		end, err := parsePoint(c.Attribute, c.Values[1])
		if err != nil {
			return false, err
		}
		in := within(c.Attribute, cur, start, end)
		if c.Operator == OpNotBetween {
			return !in, nil
		}
		return in, nil

	case OpIn, OpNotIn:
		found := false
		for _, raw := range c.Values {
			p, err := parsePoint(c.Attribute, raw)
			if err != nil {
				return false, err
			}
			if p == cur {
				found = true
			}
		}
		if c.Operator == OpNotIn {
			return !found, nil
		}
		return found, nil

	case OpEquals, OpAfter, OpBefore:
		v, err := parsePoint(c.Attribute, c.Value)
		if err != nil {
			return false, err
		}
		switch c.Operator {
		case OpEquals:
			return cur == v, nil
		case OpAfter:
			return v.less(cur), nil
		default:
			return cur.less(v), nil
		}
	}
	return false, fmt.Errorf("operator %q is not supported for time conditions", c.Operator)
}

// within applies range semantics per attribute. Times are half-open
// [start, end) and wrap past midnight when start > end. Weekdays are
// inclusive and wrap past sunday. Dates are inclusive and never wrap.
func within(attr TimeAttribute, cur, start, end point) bool {
	switch attr {
	case AttrTime:
		if start.n < end.n {
			return start.n <= cur.n && cur.n < end.n
		}
		return cur.n >= start.n || cur.n < end.n
	case AttrDayOfWeek:
		if start.n <= end.n {
			return start.n <= cur.n && cur.n <= end.n
		}
		return cur.n >= start.n || cur.n <= end.n
	default:
		return !cur.less(start) && !end.less(cur)
	}
}

// EvaluateTimeConditions ANDs every condition. An empty list matches.
func EvaluateTimeConditions(conds []TimeCondition, now time.Time, fallback *time.Location) (bool, error) {
	for _, c := range conds {
		ok, err := c.Evaluate(now, fallback)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
