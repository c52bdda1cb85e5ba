// Command dramabox-locales checks locale bundles for missing keys and fills
// them by machine translation.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ZaguanLabs/dramabox"
	"github.com/ZaguanLabs/dramabox/locale"
	"github.com/ZaguanLabs/dramabox/provider"
)

const usage = `usage: dramabox-locales <command> [flags] [lang...]

Commands:
  check   report missing, extra and untranslated keys per bundle
  fill    machine-translate the keys a bundle is missing

Run "dramabox-locales <command> -h" for the flags of a command.
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("a command is required")
	}

	switch args[0] {
	case "check":
		return runCheck(args[1:], stdout, stderr)
	case "fill":
		return runFill(args[1:], stdout, stderr)
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "%s-locales %s\n", dramabox.Name, dramabox.FullVersion())
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// bundleSource opens the bundles of dir, or the compiled-in bundles when dir
// is empty.
func bundleSource(dir string) fs.FS {
	if dir == "" {
		return locale.DefaultFS()
	}
	return os.DirFS(dir)
}

// targets returns the languages named in args, or every supported
// language except base.
func targets(args []string, base dramabox.Language) ([]dramabox.Language, error) {
	if len(args) == 0 {
		langs := make([]dramabox.Language, 0, len(dramabox.SupportedLanguages)-1)
		for _, lang := range dramabox.SupportedLanguages {
			if lang != base {
				langs = append(langs, lang)
			}
		}
		return langs, nil
	}

	langs := make([]dramabox.Language, 0, len(args))
	for _, arg := range args {
		if !dramabox.IsSupported(arg) {
			return nil, fmt.Errorf("unsupported language %q", arg)
		}
		langs = append(langs, dramabox.Language(arg))
	}
	return langs, nil
}

// CheckReport is the JSON form of one bundle comparison.
type CheckReport struct {
	Lang         dramabox.Language `json:"lang"`
	Coverage     float64           `json:"coverage"`
	Missing      []string          `json:"missing"`
	Extra        []string          `json:"extra,omitempty"`
	Untranslated []string          `json:"untranslated,omitempty"`

	// Fingerprint hashes the bundle file, so a changed bundle shows up
	// between two runs.
	Fingerprint string `json:"fingerprint"`
}

func runCheck(args []string, stdout, stderr io.Writer) error {
	fset := flag.NewFlagSet("check", flag.ContinueOnError)
	fset.SetOutput(stderr)

	dir := fset.String("dir", "", "Bundle directory (default: the compiled-in bundles)")
	baseLang := fset.String("base", string(dramabox.DefaultLanguage), "Base language every bundle is compared to")
	jsonOutput := fset.Bool("json", false, "Output reports as JSON")
	strict := fset.Bool("strict", false, "Fail when any bundle is missing keys")
	verbose := fset.Bool("v", false, "List the missing keys of each bundle")

	if err := fset.Parse(args); err != nil {
		return err
	}
	if !dramabox.IsSupported(*baseLang) {
		return fmt.Errorf("unsupported base language %q", *baseLang)
	}
	base := dramabox.Language(*baseLang)

	langs, err := targets(fset.Args(), base)
	if err != nil {
		return err
	}

	src := bundleSource(*dir)
	store := locale.NewStore(locale.WithFS(src), locale.WithFallback(base))
	baseBundle, err := store.Bundle(base)
	if err != nil {
		return err
	}

	reports := make([]CheckReport, 0, len(langs))
	incomplete := 0
	for _, lang := range langs {
		bundle, err := store.Bundle(lang)
		if err != nil {
			return err
		}
		data, err := fs.ReadFile(src, string(lang)+".json")
		if err != nil {
			return fmt.Errorf("reading %s bundle: %w", lang, err)
		}
		diff := locale.Diff(baseBundle, bundle)
		if !diff.Complete() {
			incomplete++
		}
		reports = append(reports, CheckReport{
			Fingerprint:  dramabox.HashText(string(data)),
			Lang:         lang,
			Coverage:     diff.Coverage(),
			Missing:      nonNil(diff.Missing),
			Extra:        diff.Extra,
			Untranslated: diff.Untranslated,
		})
	}

	if *jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		baseKeys := len(locale.Diff(baseBundle, baseBundle).Shared)
		printReports(stdout, base, baseKeys, reports, *verbose)
	}

	if *strict && incomplete > 0 {
		return fmt.Errorf("%d of %d bundles are missing keys", incomplete, len(reports))
	}
	return nil
}

func printReports(w io.Writer, base dramabox.Language, baseKeys int, reports []CheckReport, verbose bool) {
	fmt.Fprintf(w, "Base: %s (%d keys)\n\n", base, baseKeys)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LANG\tNAME\tCOVERAGE\tMISSING\tEXTRA\tUNTRANSLATED\tHASH")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\t%d\t%d\t%d\t%s\n",
			r.Lang, dramabox.DisplayName(r.Lang), r.Coverage*100, len(r.Missing), len(r.Extra), len(r.Untranslated), shortHash(r.Fingerprint))
	}
	tw.Flush()

	if !verbose {
		return
	}
	for _, r := range reports {
		if len(r.Missing) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s is missing:\n", r.Lang)
		for _, key := range r.Missing {
			fmt.Fprintf(w, "  - %s\n", key)
		}
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// retryingTranslator retries transient translation failures.
type retryingTranslator struct {
	inner dramabox.MachineTranslator
	cfg   dramabox.RetryConfig
}

func (r *retryingTranslator) Translate(ctx context.Context, req dramabox.TranslateRequest) ([]string, error) {
	return dramabox.WithRetry(ctx, r.cfg, func() ([]string, error) {
		return r.inner.Translate(ctx, req)
	})
}

func runFill(args []string, stdout, stderr io.Writer) error {
	fset := flag.NewFlagSet("fill", flag.ContinueOnError)
	fset.SetOutput(stderr)

	dir := fset.String("dir", "", "Bundle directory to update (required)")
	baseLang := fset.String("base", string(dramabox.DefaultLanguage), "Language the missing strings are translated from")
	apiKey := fset.String("api-key", "", "OpenAI API key (default: OPENAI_API_KEY env)")
	model := fset.String("model", "gpt-4o-mini", "OpenAI model to use")
	baseURL := fset.String("base-url", "", "OpenAI-compatible API base URL")
	batchSize := fset.Int("batch-size", 50, "Strings sent per translation request")
	exclude := fset.String("exclude", "DramaBox", "Comma-separated terms to never translate")
	dryRun := fset.Bool("dry-run", false, "List the keys that would be translated without calling the API")
	mock := fset.Bool("mock", false, "Use the offline mock translator")
	quiet := fset.Bool("quiet", false, "Suppress progress output")
	timeout := fset.Duration("timeout", 5*time.Minute, "Overall timeout")

	if err := fset.Parse(args); err != nil {
		return err
	}
	if *dir == "" {
		fset.Usage()
		return fmt.Errorf("--dir is required")
	}
	if !dramabox.IsSupported(*baseLang) {
		return fmt.Errorf("unsupported base language %q", *baseLang)
	}
	base := dramabox.Language(*baseLang)

	langs, err := targets(fset.Args(), base)
	if err != nil {
		return err
	}

	store := locale.NewStore(locale.WithFS(os.DirFS(*dir)), locale.WithFallback(base))
	baseBundle, err := store.Bundle(base)
	if err != nil {
		return err
	}

	if *dryRun {
		for _, lang := range langs {
			bundle, err := store.Bundle(lang)
			if err != nil {
				return err
			}
			missing := locale.Diff(baseBundle, bundle).Missing
			fmt.Fprintf(stdout, "%s: %d keys to translate\n", lang, len(missing))
			for _, key := range missing {
				fmt.Fprintf(stdout, "  %s\n", key)
			}
		}
		return nil
	}

	var translator dramabox.MachineTranslator
	if *mock {
		translator = provider.NewMockProvider()
	} else {
		key := *apiKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" {
			return fmt.Errorf("OpenAI API key required (--api-key or OPENAI_API_KEY env)")
		}
		translator = &retryingTranslator{
			inner: provider.NewOpenAIProvider(provider.OpenAIConfig{APIKey: key, Model: *model, BaseURL: *baseURL}),
			cfg:   dramabox.DefaultRetryConfig(),
		}
	}

	var terms []string
	for _, term := range strings.Split(*exclude, ",") {
		if term = strings.TrimSpace(term); term != "" {
			terms = append(terms, term)
		}
	}
	filler := locale.NewFiller(translator, locale.WithBatchSize(*batchSize), locale.WithExcludedTerms(terms...))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	for _, lang := range langs {
		added, err := fillBundle(ctx, filler, *dir, base, baseBundle, lang, store)
		if err != nil {
			return fmt.Errorf("filling %s: %w", lang, err)
		}
		if !*quiet {
			fmt.Fprintf(stderr, "%s: added %d keys\n", lang, added)
		}
	}
	return nil
}

// fillBundle translates the keys lang is missing and writes them into its
// bundle file. It returns the number of keys added.
func fillBundle(ctx context.Context, filler *locale.Filler, dir string, base dramabox.Language, baseBundle *locale.Bundle, lang dramabox.Language, store *locale.Store) (int, error) {
	bundle, err := store.Bundle(lang)
	if err != nil {
		return 0, err
	}

	additions, err := filler.Fill(ctx, base, baseBundle, lang, bundle)
	if err != nil {
		return 0, err
	}
	if len(additions) == 0 {
		return 0, nil
	}

	path := filepath.Join(dir, string(lang)+".json")
	data, err := os.ReadFile(path) // #nosec G304 - CLI tool updates user-specified bundles
	if err != nil {
		return 0, fmt.Errorf("reading bundle: %w", err)
	}
	merged, err := locale.Merge(data, additions)
	if err != nil {
		return 0, err
	}
	if _, err := locale.ParseBundle(lang, merged); err != nil {
		return 0, fmt.Errorf("merged bundle is invalid: %w", err)
	}
	if err := os.WriteFile(path, merged, 0o644); err != nil { // #nosec G306 - bundles are public content
		return 0, fmt.Errorf("writing bundle: %w", err)
	}
	return len(additions), nil
}
