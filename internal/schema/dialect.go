package schema

import (
	"fmt"
	"strings"
)

// Dialect selects the SQL flavour statements are rendered in
type Dialect string

const (
	// Redshift renders warehouse SQL with layout hints and COPY support
	Redshift Dialect = "redshift"
	// SQLite renders portable SQL for the local target. It has no COPY; the
	// staging tables are filled by the staging package instead.
	SQLite Dialect = "sqlite"
)

// ParseDialect maps a target name onto a Dialect
func ParseDialect(name string) (Dialect, error) {
	switch Dialect(strings.ToLower(name)) {
	case Redshift:
		return Redshift, nil
	case SQLite:
		return SQLite, nil
	}
	return "", fmt.Errorf("unknown dialect %q", name)
}

// SupportsCopy reports whether the dialect can bulk-load from object storage
func (d Dialect) SupportsCopy() bool {
	return d == Redshift
}

// datePart identifies a calendar field extracted for the time dimension
type datePart string

const (
	partHour    datePart = "hour"
	partDay     datePart = "day"
	partWeek    datePart = "week"
	partMonth   datePart = "month"
	partYear    datePart = "year"
	partWeekday datePart = "weekday"
)

// Redshift DATE_PART names. week is the ISO-8601 week; dow counts from
// 0 = Sunday.
var redshiftParts = map[datePart]string{
	partHour:    "hour",
	partDay:     "day",
	partWeek:    "week",
	partMonth:   "month",
	partYear:    "year",
	partWeekday: "dow",
}

// SQLite strftime conversions matching the Redshift numbering: %V is the
// ISO-8601 week, %w counts from 0 = Sunday.
var sqliteParts = map[datePart]string{
	partHour:    "%H",
	partDay:     "%d",
	partWeek:    "%V",
	partMonth:   "%m",
	partYear:    "%Y",
	partWeekday: "%w",
}

// epochMillisToTimestamp converts an epoch-millisecond column into a UTC
// timestamp truncated to whole seconds.
func (d Dialect) epochMillisToTimestamp(col string) string {
	if d == SQLite {
		return fmt.Sprintf("datetime(%s / 1000, 'unixepoch')", col)
	}
	return fmt.Sprintf("TIMESTAMP 'epoch' + (%s / 1000) * INTERVAL '1 second'", col)
}

func (d Dialect) datePart(part datePart, expr string) string {
	if d == SQLite {
		return fmt.Sprintf("CAST(strftime('%s', %s) AS INTEGER)", sqliteParts[part], expr)
	}
	return fmt.Sprintf("DATE_PART(%s, %s)::INTEGER", redshiftParts[part], expr)
}

func (d Dialect) dropTable(t Table) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", t.Name)
}

func (d Dialect) createTable(t Table) string {
	var lines []string
	for _, c := range t.Columns {
		lines = append(lines, "    "+d.columnDefinition(c))
	}

	// SQLite declares the identity key inline
	inlinePK := d == SQLite && t.PrimaryKey != "" && isIdentity(t, t.PrimaryKey)
	if t.PrimaryKey != "" && !inlinePK {
		lines = append(lines, fmt.Sprintf("    PRIMARY KEY (%s)", t.PrimaryKey))
	}
	for _, fk := range t.ForeignKeys {
		lines = append(lines, fmt.Sprintf("    FOREIGN KEY (%s) REFERENCES %s (%s)",
			fk.Column, fk.ReferencedTable, fk.ReferencedColumn))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n)")
	if d == Redshift {
		b.WriteString(layoutClause(t))
	}
	b.WriteString(";")
	return b.String()
}

func (d Dialect) columnDefinition(c Column) string {
	def := c.Name + " " + c.Type
	switch {
	case c.Identity && d == SQLite:
		// AUTOINCREMENT requires the INTEGER PRIMARY KEY spelling
		return c.Name + " INTEGER PRIMARY KEY AUTOINCREMENT"
	case c.Identity:
		def += " IDENTITY(0,1)"
	}
	if !c.Nullable {
		def += " NOT NULL"
	}
	return def
}

func layoutClause(t Table) string {
	var parts []string
	if t.DistStyle != DistAuto {
		parts = append(parts, "DISTSTYLE "+string(t.DistStyle))
	}
	if t.DistStyle == DistKey && t.DistKey != "" {
		parts = append(parts, fmt.Sprintf("DISTKEY (%s)", t.DistKey))
	}
	if t.SortKey != "" {
		parts = append(parts, fmt.Sprintf("SORTKEY (%s)", t.SortKey))
	}
	if len(parts) == 0 {
		return ""
	}
	return "\n" + strings.Join(parts, "\n")
}

func isIdentity(t Table, name string) bool {
	c, ok := t.Column(name)
	return ok && c.Identity
}

// quoteLiteral renders s as a single-quoted SQL string literal
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
