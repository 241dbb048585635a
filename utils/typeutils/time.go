/*
 * Copyright 2025 Olake By Datazip
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package typeutils

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/datazip-inc/sqlstream/types"
)

// layouts tried in order when a timestamp arrives as text
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
}

// ParseTimestamp parses a textual timestamp in any of the layouts databases
// commonly produce. Layouts without a zone are interpreted as UTC.
func ParseTimestamp(text string) (time.Time, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp format: %q", text)
}

// EventTime derives an event time from a column value: a native timestamp,
// Unix epoch seconds (integral or fractional) or a textual timestamp.
func EventTime(value types.Value) (time.Time, error) {
	switch value.Kind() {
	case types.KindTimestamp:
		return value.Timestamp(), nil
	case types.KindInt:
		return time.Unix(value.Int(), 0).UTC(), nil
	case types.KindFloat:
		f := value.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return time.Time{}, fmt.Errorf("invalid epoch value: %v", f)
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC(), nil
	case types.KindText:
		return ParseTimestamp(value.Text())
	default:
		return time.Time{}, fmt.Errorf("null time value")
	}
}
