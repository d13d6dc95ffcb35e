// Package all registers every storage backend with the storage factory.
// Commands import it for side effects; the source or export kind picks the
// backend at run time.
package all

import (
	_ "plotprep/internal/storage/mssql"
	_ "plotprep/internal/storage/postgres"
	_ "plotprep/internal/storage/sqlite"
)
