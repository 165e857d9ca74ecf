package schema

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// TableRole distinguishes transient staging tables from the star schema
type TableRole string

const (
	RoleStaging   TableRole = "STAGING"
	RoleFact      TableRole = "FACT"
	RoleDimension TableRole = "DIMENSION"
)

// DistStyle is the warehouse row distribution strategy of a table
type DistStyle string

const (
	DistAuto DistStyle = ""
	DistKey  DistStyle = "KEY"
	DistAll  DistStyle = "ALL"
	DistEven DistStyle = "EVEN"
)

// Column represents a table column
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Identity bool
}

// ForeignKey represents a foreign key constraint
type ForeignKey struct {
	Column           string
	ReferencedTable  string
	ReferencedColumn string
}

// Table is the declarative definition of one warehouse table together with
// its physical layout hints.
type Table struct {
	Name        string
	Role        TableRole
	Columns     []Column
	PrimaryKey  string
	ForeignKeys []ForeignKey
	DistStyle   DistStyle
	DistKey     string
	SortKey     string
}

// ColumnNames returns the column names in declaration order
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Kind is the statement class; each class forms one ordered list
type Kind string

const (
	KindDrop   Kind = "DROP"
	KindCreate Kind = "CREATE"
	KindCopy   Kind = "COPY"
	KindInsert Kind = "INSERT"
)

// Statement is one rendered SQL statement
type Statement struct {
	Name  string
	Table string
	Kind  Kind
	SQL   string
}

// Fingerprint is a stable short hash of the statement text, used to
// correlate log lines across runs.
func (s Statement) Fingerprint() string {
	return fmt.Sprintf("%016x", xxh3.HashString(s.SQL))
}

func (s Statement) String() string {
	return s.Name
}
