package dbbuilder

import "NYCU-SDC/workflow-editor-backend/internal"

type DBTX = internal.DBTX
