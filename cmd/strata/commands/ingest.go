package commands

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratahq/strata/action"
	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/ingest"
	"github.com/stratahq/strata/vals"
)

// IngestCmd stores raw content with its extracted candidates.
var IngestCmd = &cobra.Command{
	Use:   "ingest <content-file>",
	Short: "Store raw content and its extracted candidates",
	Long: `Store one raw input immutably and route its candidate entities.

Candidates come from a JSON file: an array of objects with "entity_type" and
"fields". Fields the active schema recognizes become observations; unknown
fields are tracked as fragments until auto-enhancement promotes them.

Examples:
  strata ingest note.txt --key note-2024-06-01 --candidates note.json --owner me
  strata ingest export.csv --key bank-june --mime text/csv --candidates rows.json --owner me`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var (
	ingestOwnerFlag      string
	ingestKeyFlag        string
	ingestMimeFlag       string
	ingestCandidatesFlag string
)

func init() {
	IngestCmd.Flags().StringVar(&ingestOwnerFlag, "owner", "", "Owner of the stored data (required)")
	IngestCmd.Flags().StringVar(&ingestKeyFlag, "key", "", "Idempotency key for this input (required)")
	IngestCmd.Flags().StringVar(&ingestMimeFlag, "mime", "text/plain", "MIME type of the content")
	IngestCmd.Flags().StringVar(&ingestCandidatesFlag, "candidates", "", "Path to the candidates JSON file (required)")
	IngestCmd.MarkFlagRequired("owner")
	IngestCmd.MarkFlagRequired("key")
	IngestCmd.MarkFlagRequired("candidates")
}

type candidateFile struct {
	EntityType string                 `json:"entity_type"`
	Fields     map[string]interface{} `json:"fields"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrapf(err, "read content file %s", args[0])
	}

	rawCandidates, err := os.ReadFile(ingestCandidatesFlag)
	if err != nil {
		return errors.Wrapf(err, "read candidates file %s", ingestCandidatesFlag)
	}
	var parsed []candidateFile
	if err := json.Unmarshal(rawCandidates, &parsed); err != nil {
		return errors.Wrap(err, "parse candidates JSON")
	}

	candidates := make([]ingest.Candidate, 0, len(parsed))
	for i, c := range parsed {
		fields, err := vals.FieldsFromAny(c.Fields)
		if err != nil {
			return errors.Wrapf(err, "candidate %d has invalid fields", i)
		}
		candidates = append(candidates, ingest.Candidate{EntityType: c.EntityType, Fields: fields})
	}

	dispatcher, database, err := openDispatcher()
	if err != nil {
		return err
	}
	defer database.Close()

	result, err := dispatcher.IngestStore(cmd.Context(), action.IngestStoreRequest{
		Content:        content,
		MimeType:       ingestMimeFlag,
		IdempotencyKey: ingestKeyFlag,
		Candidates:     candidates,
		Owner:          ingestOwnerFlag,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}
