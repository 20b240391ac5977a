// Package all registers every built-in warehouse backend.
package all

import (
	_ "datalake/internal/warehouse/mssql"
	_ "datalake/internal/warehouse/mysql"
	_ "datalake/internal/warehouse/postgres"
	_ "datalake/internal/warehouse/sqlite"
)
