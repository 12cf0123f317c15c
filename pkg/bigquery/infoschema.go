// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bigquery

import (
	"fmt"
	"regexp"
	"strings"
)

// INFORMATION_SCHEMA references need project qualification before BigQuery
// accepts them, and region-scoped views must be routed to the matching job
// location instead of carrying their region prefix into the table path.

var (
	infoSchemaRe = regexp.MustCompile("(?i)FROM\\s+(?:`?([^`.]+(?:-[^`.]+)?)`?\\.)?INFORMATION_SCHEMA\\.([A-Za-z_]+)")
	regionRe     = regexp.MustCompile("(?i)FROM\\s+`?region-([a-z0-9-]+)`?\\.INFORMATION_SCHEMA")
)

// HasInformationSchema reports whether the query references an
// INFORMATION_SCHEMA view.
func HasInformationSchema(sql string) bool {
	return infoSchemaRe.MatchString(sql)
}

// QualifyInformationSchemaQuery rewrites INFORMATION_SCHEMA references so
// they resolve under the given project:
//
//   - DATASETS becomes `project`.INFORMATION_SCHEMA.SCHEMATA, the view that
//     actually lists datasets.
//   - region-<code> prefixes are stripped; the region routes through the job
//     location (see DetectRegionLocation), not the table path.
//   - dataset-scoped views become `project.dataset.INFORMATION_SCHEMA.VIEW`.
//   - bare views become `project.INFORMATION_SCHEMA.VIEW`.
//
// With an empty project the query is returned unchanged.
func QualifyInformationSchemaQuery(sql, projectID string) string {
	if projectID == "" {
		return sql
	}

	return infoSchemaRe.ReplaceAllStringFunc(sql, func(m string) string {
		groups := infoSchemaRe.FindStringSubmatch(m)
		dataset, view := groups[1], groups[2]

		if strings.EqualFold(view, "DATASETS") {
			return fmt.Sprintf("FROM `%s`.INFORMATION_SCHEMA.SCHEMATA", projectID)
		}
		if strings.HasPrefix(strings.ToLower(dataset), "region-") {
			return fmt.Sprintf("FROM INFORMATION_SCHEMA.%s", view)
		}
		if dataset != "" {
			return fmt.Sprintf("FROM `%s.%s.INFORMATION_SCHEMA.%s`", projectID, dataset, view)
		}
		return fmt.Sprintf("FROM `%s.INFORMATION_SCHEMA.%s`", projectID, view)
	})
}

// DetectRegionLocation extracts the job location from a region-scoped
// INFORMATION_SCHEMA reference, e.g. region-us → "US". Returns "" when the
// query carries no region prefix.
func DetectRegionLocation(sql string) string {
	m := regionRe.FindStringSubmatch(sql)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}
