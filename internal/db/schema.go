package db

// schema is the logical layout of spec.md §6's three tables. The spec's
// physical schema note (monthly range partitions on time_created) is
// illustrative for a clustered relational backend; this embedded
// per-shard sqlite file keeps a single table per relation and preserves
// the same index set the spec calls out: (otype), (id1, atype, time
// DESC), (id2, atype, time DESC).
const schema = `
CREATE TABLE IF NOT EXISTS objects (
	id           INTEGER PRIMARY KEY,
	otype        TEXT    NOT NULL,
	time_created INTEGER NOT NULL,
	time_updated INTEGER NOT NULL,
	data         BLOB,
	version      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_objects_otype ON objects(otype);

CREATE TABLE IF NOT EXISTS associations (
	id1          INTEGER NOT NULL,
	atype        TEXT    NOT NULL,
	id2          INTEGER NOT NULL,
	time_created INTEGER NOT NULL,
	data         BLOB,
	PRIMARY KEY (id1, atype, id2)
);
CREATE INDEX IF NOT EXISTS idx_assoc_id1_atype_time ON associations(id1, atype, time_created DESC);
CREATE INDEX IF NOT EXISTS idx_assoc_id2_atype_time ON associations(id2, atype, time_created DESC);

CREATE TABLE IF NOT EXISTS association_counts (
	id           INTEGER NOT NULL,
	atype        TEXT    NOT NULL,
	count        INTEGER NOT NULL DEFAULT 0,
	updated_time INTEGER NOT NULL,
	PRIMARY KEY (id, atype)
);
`
