package tui

import (
	"errors"
	"time"

	"github.com/ectop-dev/ectop/pkg/gateway"
	"github.com/ectop-dev/ectop/pkg/search"
)

// errUnchanged signals an edit session that left the script as it was.
var errUnchanged = errors.New("script unchanged")

// tickMsg drives the periodic full sync.
type tickMsg time.Time

// syncDoneMsg reports a completed full sync.
type syncDoneMsg struct {
	err error
}

// expandDoneMsg reports a completed lazy expansion or subtree refresh.
type expandDoneMsg struct {
	path string
	err  error
}

// artifactMsg carries fetched file content for the content pane. tail
// marks an incremental fetch that appends to what is already shown.
type artifactMsg struct {
	path string
	kind gateway.ArtifactKind
	data []byte
	err  error
	tail bool
}

// searchResultMsg carries an asynchronously refined search result set;
// token ties it to the query generation that requested it.
type searchResultMsg struct {
	token  int64
	cursor *search.Cursor
}

// opDoneMsg reports a finished control operation.
type opDoneMsg struct {
	verb string
	path string
	err  error
}

// editorStartMsg reports the script staged in a temp file, ready for the
// external editor.
type editorStartMsg struct {
	path     string
	file     string
	original string
	err      error
}

// editorDoneMsg reports the external editor exiting; file is the temp
// script the user edited.
type editorDoneMsg struct {
	path string
	file string
	err  error
}

// scriptSavedMsg reports the edited script being pushed to the server.
type scriptSavedMsg struct {
	path string
	err  error
}
