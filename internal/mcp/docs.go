package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `fieldcam catalogs field inspection photos as Sessions → Photos.

Core concepts:
- Session: a named inspection unit. Exactly one is active; new captures land in it.
- Sequence: each session numbers its photos 1..N with no gaps. get_sequence returns N+1, the number the next capture receives.
- Photo: a record with sequence number, capture time, optional location and notes, and references to a full image and a thumbnail.

Rules of engagement:
1) Orient: list_sessions shows every session with its photo count; the active one has is_active=true.
2) Capture: capture_photo(image_base64, orientation, latitude, longitude, notes) stores a photo in the active session and returns its sequence number. replace_photo overwrites an image in place, typically with an annotated copy.
3) Browse: list_photos(session_id) for one session in sequence order, or list_photos() for everything newest first.
4) Delete: delete_photos renumbers the survivors. Photo 3 of 1,2,3 becomes 2 after deleting 2. Re-read numbers after deleting.
5) Sequence overrides: set_sequence above N+1 leaves a gap on purpose; reset_sequence restarts at 1, but captures never reuse a number still held by a photo.
6) Pruning: prune_sessions deletes inactive sessions beyond the cap, least recently used first, with all their photos.

Docs:
- fieldcam://docs/concepts
- fieldcam://docs/numbering
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "fieldcam://docs/concepts",
		Name:        "docs_concepts",
		Title:       "fieldcam concepts",
		Description: "Sessions, photos, artifacts and change events.",
		Content: `# fieldcam concepts

## Session
A named inspection unit with its own counter. Creating or switching a session
makes it the only active one. Switching back resumes the old counter.

Reset policies:
- session_scoped: numbering continues until changed explicitly.
- daily: the first capture on a new local day starts a fresh session.

## Photo
Each capture stores a full JPEG and a thumbnail under the storage root and a
catalog row holding the sequence number, capture time, orientation, optional
location and notes, and a BLAKE3 checksum of the full image.

Photos are added with the capture_photo tool or POST /photos (image body,
with orientation, lat, lon and notes as query parameters). replace_photo and
PUT /photos/{id}/full overwrite the image in place and mark it annotated.
Artifacts are served over HTTP at /photos/{id}/full and /photos/{id}/thumbnail.

## Change events
Clients can follow /events (WebSocket) for session and photo changes.
`,
	},
	{
		URI:         "fieldcam://docs/numbering",
		Name:        "docs_numbering",
		Title:       "Sequence numbering",
		Description: "How numbers are assigned and renumbered.",
		Content: `# Sequence numbering

- A session with N photos numbers them exactly 1..N.
- The next capture receives N+1.
- Deleting photos shifts every later photo down, in one transaction per photo.
- Deletions across several sessions run per session; one session failing does
  not stop the others. delete_photos reports each session's outcome.
- If any requested photo ID is unknown, nothing is deleted.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
