package schema

// Staging tables mirror the raw JSON documents column for column. The
// staging_events column order is the order of the jsonpaths mapping file.
var (
	StagingEvents = Table{
		Name: "staging_events",
		Role: RoleStaging,
		Columns: []Column{
			{Name: "artist", Type: "VARCHAR(255)", Nullable: true},
			{Name: "auth", Type: "VARCHAR(100)", Nullable: true},
			{Name: "first_name", Type: "VARCHAR(50)", Nullable: true},
			{Name: "gender", Type: "CHAR(1)", Nullable: true},
			{Name: "item_in_session", Type: "INTEGER", Nullable: true},
			{Name: "last_name", Type: "VARCHAR(50)", Nullable: true},
			{Name: "length", Type: "DOUBLE PRECISION", Nullable: true},
			{Name: "level", Type: "VARCHAR(10)", Nullable: true},
			{Name: "location", Type: "VARCHAR(255)", Nullable: true},
			{Name: "method", Type: "VARCHAR(20)", Nullable: true},
			{Name: "page", Type: "VARCHAR(50)", Nullable: true},
			{Name: "registration", Type: "BIGINT", Nullable: true},
			{Name: "session_id", Type: "INTEGER", Nullable: true},
			{Name: "song", Type: "VARCHAR(500)", Nullable: true},
			{Name: "status", Type: "INTEGER", Nullable: true},
			{Name: "ts", Type: "BIGINT", Nullable: true},
			{Name: "user_agent", Type: "VARCHAR(500)", Nullable: true},
			{Name: "user_id", Type: "INTEGER", Nullable: true},
		},
		SortKey: "ts",
	}

	StagingSongs = Table{
		Name: "staging_songs",
		Role: RoleStaging,
		Columns: []Column{
			{Name: "num_songs", Type: "INTEGER", Nullable: true},
			{Name: "artist_id", Type: "VARCHAR(50)", Nullable: true},
			{Name: "artist_latitude", Type: "DOUBLE PRECISION", Nullable: true},
			{Name: "artist_longitude", Type: "DOUBLE PRECISION", Nullable: true},
			{Name: "artist_location", Type: "VARCHAR(255)", Nullable: true},
			{Name: "artist_name", Type: "VARCHAR(255)", Nullable: true},
			{Name: "song_id", Type: "VARCHAR(50)", Nullable: true},
			{Name: "title", Type: "VARCHAR(500)", Nullable: true},
			{Name: "duration", Type: "DOUBLE PRECISION", Nullable: true},
			{Name: "year", Type: "INTEGER", Nullable: true},
		},
		SortKey: "artist_id",
	}
)

// Star schema tables.
var (
	Songplays = Table{
		Name: "songplays",
		Role: RoleFact,
		Columns: []Column{
			{Name: "songplay_id", Type: "INTEGER", Identity: true},
			{Name: "start_time", Type: "TIMESTAMP", Nullable: true},
			{Name: "user_id", Type: "INTEGER"},
			{Name: "session_id", Type: "INTEGER", Nullable: true},
			{Name: "level", Type: "VARCHAR(10)", Nullable: true},
			{Name: "song_id", Type: "VARCHAR(50)"},
			{Name: "artist_id", Type: "VARCHAR(50)"},
			{Name: "location", Type: "VARCHAR(255)", Nullable: true},
			{Name: "user_agent", Type: "VARCHAR(500)", Nullable: true},
		},
		PrimaryKey: "songplay_id",
		ForeignKeys: []ForeignKey{
			{Column: "user_id", ReferencedTable: "users", ReferencedColumn: "user_id"},
			{Column: "song_id", ReferencedTable: "songs", ReferencedColumn: "song_id"},
			{Column: "artist_id", ReferencedTable: "artists", ReferencedColumn: "artist_id"},
		},
		DistStyle: DistKey,
		DistKey:   "artist_id",
		SortKey:   "location",
	}

	Users = Table{
		Name: "users",
		Role: RoleDimension,
		Columns: []Column{
			{Name: "user_id", Type: "INTEGER"},
			{Name: "first_name", Type: "VARCHAR(50)", Nullable: true},
			{Name: "last_name", Type: "VARCHAR(50)", Nullable: true},
			{Name: "gender", Type: "VARCHAR(10)", Nullable: true},
			{Name: "level", Type: "VARCHAR(10)"},
		},
		PrimaryKey: "user_id",
		DistStyle:  DistAll,
		SortKey:    "level",
	}

	Songs = Table{
		Name: "songs",
		Role: RoleDimension,
		Columns: []Column{
			{Name: "song_id", Type: "VARCHAR(50)"},
			{Name: "title", Type: "VARCHAR(500)", Nullable: true},
			{Name: "artist_id", Type: "VARCHAR(50)", Nullable: true},
			{Name: "year", Type: "INTEGER", Nullable: true},
			{Name: "duration", Type: "DOUBLE PRECISION", Nullable: true},
		},
		PrimaryKey: "song_id",
		DistStyle:  DistKey,
		DistKey:    "artist_id",
		SortKey:    "title",
	}

	Artists = Table{
		Name: "artists",
		Role: RoleDimension,
		Columns: []Column{
			{Name: "artist_id", Type: "VARCHAR(50)"},
			{Name: "artist_name", Type: "VARCHAR(255)", Nullable: true},
			{Name: "artist_location", Type: "VARCHAR(255)", Nullable: true},
			{Name: "artist_latitude", Type: "DOUBLE PRECISION", Nullable: true},
			{Name: "artist_longitude", Type: "DOUBLE PRECISION", Nullable: true},
		},
		PrimaryKey: "artist_id",
		DistStyle:  DistKey,
		DistKey:    "artist_id",
		SortKey:    "artist_name",
	}

	Time = Table{
		Name: "time",
		Role: RoleDimension,
		Columns: []Column{
			{Name: "start_time", Type: "TIMESTAMP"},
			{Name: "hour", Type: "INTEGER"},
			{Name: "day", Type: "INTEGER"},
			{Name: "week", Type: "INTEGER"},
			{Name: "month", Type: "INTEGER"},
			{Name: "year", Type: "INTEGER"},
			{Name: "weekday", Type: "INTEGER"},
		},
		PrimaryKey: "start_time",
		DistStyle:  DistEven,
		SortKey:    "start_time",
	}
)

// Tables returns every table in creation order: staging tables, then
// dimensions, then the fact table so its references resolve.
func Tables() []Table {
	return []Table{StagingEvents, StagingSongs, Users, Songs, Artists, Time, Songplays}
}

// AnalyticsTables returns the star schema tables in load order
func AnalyticsTables() []Table {
	return []Table{Users, Songs, Artists, Time, Songplays}
}

func (t Table) withNullable(names ...string) Table {
	cols := make([]Column, len(t.Columns))
	copy(cols, t.Columns)
	for i := range cols {
		for _, n := range names {
			if cols[i].Name == n {
				cols[i].Nullable = true
			}
		}
	}
	t.Columns = cols
	return t
}
