package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	initTemplate string
	initRoot     string
	initForce    bool
)

var initCmd = &cobra.Command{
	Use:   "init <name>",
	Short: "Scaffold a new function",
	Long: `Scaffold a new function under the script root.

Creates <script_root>/<name>/ with:
  - function.json    Binding manifest read by the host
  - main.go          Function source with its catalog registration

Templates:
  http    HTTP trigger returning an HTTP response (default)
  queue   Queue trigger writing to an output queue
  blob    Blob trigger returning the blob size`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initTemplate, "template", "t", "http", "Function template (http, queue, blob)")
	initCmd.Flags().StringVarP(&initRoot, "root", "r", "", "Script root (default: functions.script_root)")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing files")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := validateFunctionName(name); err != nil {
		return err
	}

	root := initRoot
	if root == "" {
		root = currentConfig().Functions.ScriptRoot
	}

	tmpl, err := validateTemplate(initTemplate)
	if err != nil {
		return err
	}

	dir := filepath.Join(root, name)
	if err := prepareFunctionDir(dir, initForce); err != nil {
		return err
	}

	if err := writeTemplateFiles(dir, tmpl.render(name)); err != nil {
		return err
	}

	printSuccessMessage(cmd, name, initTemplate)
	return nil
}

var functionNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

func validateFunctionName(name string) error {
	if !functionNamePattern.MatchString(name) {
		return fmt.Errorf("invalid function name %q: use letters, digits, '_' and '-', starting with a letter", name)
	}
	return nil
}

func validateTemplate(name string) (*Template, error) {
	templates := getTemplates()
	tmpl, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown template: %s (available: %s)", name, strings.Join(templateNames(), ", "))
	}
	return tmpl, nil
}

func prepareFunctionDir(dir string, force bool) error {
	if !force {
		existingFiles := checkExistingFiles(dir)
		if len(existingFiles) > 0 {
			return fmt.Errorf("files already exist: %s (use --force to overwrite)", strings.Join(existingFiles, ", "))
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating function directory: %w", err)
	}
	return nil
}

func writeTemplateFiles(dir string, files map[string]string) error {
	for filename, content := range files {
		if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", filename, err)
		}
		log.Info().Str("file", filepath.Join(dir, filename)).Msg("Created")
	}
	return nil
}

func printSuccessMessage(cmd *cobra.Command, name, templateName string) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "✓ Function %q created from the %q template\n", name, templateName)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  import the function package from your worker's main package")
	fmt.Fprintln(out, "  alyx-worker validate    # Check the function against its manifest")
	fmt.Fprintln(out)
}

func checkExistingFiles(dir string) []string {
	filesToCheck := []string{"function.json", "function.yaml", "main.go"}
	var existing []string
	for _, f := range filesToCheck {
		if _, err := os.Stat(filepath.Join(dir, f)); err == nil {
			existing = append(existing, f)
		}
	}
	return existing
}

// Template is a function scaffold. File contents use {{name}} for the
// function name and {{package}} for its Go package name.
type Template struct {
	Name        string
	Description string
	Files       map[string]string
}

func (t *Template) render(name string) map[string]string {
	r := strings.NewReplacer(
		"{{name}}", name,
		"{{package}}", packageName(name),
	)
	files := make(map[string]string, len(t.Files))
	for filename, content := range t.Files {
		files[filename] = r.Replace(content)
	}
	return files
}

// packageName turns a function name into a valid Go package name.
func packageName(name string) string {
	return strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(name))
}

func templateNames() []string {
	names := make([]string, 0, len(getTemplates()))
	for name := range getTemplates() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func getTemplates() map[string]*Template {
	return map[string]*Template{
		"http": {
			Name:        "http",
			Description: "HTTP trigger returning an HTTP response",
			Files: map[string]string{
				"function.json": httpFunctionJSON,
				"main.go":       httpMainGo,
			},
		},
		"queue": {
			Name:        "queue",
			Description: "Queue trigger writing to an output queue",
			Files: map[string]string{
				"function.json": queueFunctionJSON,
				"main.go":       queueMainGo,
			},
		},
		"blob": {
			Name:        "blob",
			Description: "Blob trigger returning the blob size",
			Files: map[string]string{
				"function.json": blobFunctionJSON,
				"main.go":       blobMainGo,
			},
		},
	}
}

const httpFunctionJSON = `{
  "scriptFile": "main.go",
  "bindings": [
    {
      "name": "req",
      "type": "httpTrigger",
      "direction": "in",
      "methods": ["get", "post"]
    },
    {
      "name": "$return",
      "type": "http",
      "direction": "out"
    }
  ]
}
`

const httpMainGo = `package {{package}}

import (
	"github.com/watzon/alyx-worker/pkg/fn"
)

func init() {
	fn.Register("{{name}}/main.go", "Main", Main, fn.Params("context", "req"))
}

// Main greets the caller named by the "name" query parameter.
func Main(ctx *fn.Context, req *fn.HTTPRequest) *fn.HTTPResponse {
	ctx.Logger().Info().Str("method", req.Method).Msg("handling request")

	name := req.Query["name"]
	if name == "" {
		return fn.NewHTTPResponse(400, "pass a name in the query string")
	}
	return fn.NewHTTPResponse(200, "Hello, "+name+"!")
}
`

const queueFunctionJSON = `{
  "scriptFile": "main.go",
  "bindings": [
    {
      "name": "msg",
      "type": "queueTrigger",
      "direction": "in",
      "queueName": "{{name}}-in"
    },
    {
      "name": "out",
      "type": "queue",
      "direction": "out",
      "queueName": "{{name}}-out"
    }
  ]
}
`

const queueMainGo = `package {{package}}

import (
	"github.com/watzon/alyx-worker/pkg/fn"
)

func init() {
	fn.Register("{{name}}/main.go", "Main", Main, fn.Params("context", "msg", "out"))
}

// Main forwards each message to the output queue.
func Main(ctx *fn.Context, msg *fn.QueueMessage, out *fn.Out[string]) {
	ctx.Logger().Info().
		Str("message_id", msg.ID).
		Int64("dequeue_count", msg.DequeueCount).
		Msg("processing message")

	out.Set(string(msg.Body))
}
`

const blobFunctionJSON = `{
  "scriptFile": "main.go",
  "bindings": [
    {
      "name": "blob",
      "type": "blobTrigger",
      "direction": "in",
      "path": "{{name}}/{name}"
    },
    {
      "name": "$return",
      "type": "generic",
      "direction": "out"
    }
  ]
}
`

const blobMainGo = `package {{package}}

import (
	"io"
	"strconv"

	"github.com/watzon/alyx-worker/pkg/fn"
)

func init() {
	fn.Register("{{name}}/main.go", "Main", Main, fn.Params("blob"))
}

// Main reports the size of the blob that triggered it.
func Main(blob *fn.InputStream) (string, error) {
	n, err := io.Copy(io.Discard, blob)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n, 10), nil
}
`
