package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidLevels = errors.New("invalid level table")

// DefaultLevels is the level table used when LEVEL_THRESHOLDS is unset.
const DefaultLevels = "Beginner:0,Intermediate:100,Advanced:500,Expert:1000,Master:5000"

type Level struct {
	Number    int    `json:"number"`
	Name      string `json:"name"`
	Threshold int    `json:"threshold"`
}

// LevelTable is ordered by strictly ascending threshold and starts at 0.
type LevelTable []Level

// ParseLevels reads "Name:threshold" pairs separated by commas.
func ParseLevels(table string) (LevelTable, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		table = DefaultLevels
	}
	var out LevelTable
	for i, part := range strings.Split(table, ",") {
		name, raw, ok := strings.Cut(strings.TrimSpace(part), ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: entry %q is not name:threshold", ErrInvalidLevels, part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: threshold of %q: %v", ErrInvalidLevels, name, err)
		}
		if i == 0 && n != 0 {
			return nil, fmt.Errorf("%w: first level must start at 0", ErrInvalidLevels)
		}
		if i > 0 && n <= out[i-1].Threshold {
			return nil, fmt.Errorf("%w: thresholds must increase (%q)", ErrInvalidLevels, name)
		}
		out = append(out, Level{Number: i + 1, Name: name, Threshold: n})
	}
	return out, nil
}

// For returns the highest level whose threshold is at most points.
func (t LevelTable) For(points int) Level {
	if len(t) == 0 {
		return Level{Number: 1}
	}
	cur := t[0]
	for _, l := range t[1:] {
		if l.Threshold > points {
			break
		}
		cur = l
	}
	return cur
}

// Next returns the level after the one points falls in.
func (t LevelTable) Next(points int) (Level, bool) {
	cur := t.For(points)
	if cur.Number >= len(t) {
		return Level{}, false
	}
	return t[cur.Number], true
}
