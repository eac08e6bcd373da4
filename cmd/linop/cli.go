package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/born-ml/linop/autodiff"
	"github.com/born-ml/linop/internal/envconfig"
	"github.com/born-ml/linop/lazy"
	"github.com/born-ml/linop/tensor"
)

// NewCLI builds the root command.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "linop",
		Short:         "Iterative linear algebra on symmetric positive definite matrices",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetLevel(envconfig.LogLevel())
		},
		Run: func(cmd *cobra.Command, args []string) {
			if v, _ := cmd.Flags().GetBool("version"); v {
				versionHandler(cmd, args)
				return
			}
			cmd.Print(cmd.UsageString())
		},
	}
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	envVars := envconfig.AsMap()
	solver := []envconfig.EnvVar{envVars["LINOP_MAX_CG_ITERATIONS"], envVars["LINOP_CG_TOLERANCE"], envVars["LINOP_DEBUG"]}

	solveCmd := newSolveCmd()
	logdetCmd := newLogDetCmd()
	rootDecompCmd := newRootCmd()

	appendEnvDocs(solveCmd, solver)
	appendEnvDocs(logdetCmd, append(slices.Clone(solver),
		envVars["LINOP_NUM_TRACE_SAMPLES"], envVars["LINOP_MAX_LANCZOS_ITERATIONS"], envVars["LINOP_SEED"]))
	appendEnvDocs(rootDecompCmd, []envconfig.EnvVar{
		envVars["LINOP_MAX_LANCZOS_ITERATIONS"], envVars["LINOP_MAX_PRECONDITIONER_SIZE"], envVars["LINOP_MAX_CHOLESKY_NUMEL"],
		envVars["LINOP_SEED"], envVars["LINOP_DEBUG"],
	})

	rootCmd.AddCommand(
		solveCmd,
		logdetCmd,
		rootDecompCmd,
		newEnvCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Args:  cobra.NoArgs,
			Run:   versionHandler,
		},
	)

	return rootCmd
}

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-30s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func versionHandler(cmd *cobra.Command, _ []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "linop version %s\n", version)
}

func newSolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "solve MATRIX",
		Short: "Solve A x = b by conjugate gradients",
		Args:  cobra.ExactArgs(1),
		RunE:  SolveHandler,
	}
	cmd.Flags().String("rhs", "", "JSON file holding b as an array; defaults to ones")
	addOptionFlags(cmd)
	return cmd
}

func newLogDetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logdet MATRIX",
		Short: "Estimate log det A, and bᵀA⁻¹b when --rhs is given",
		Args:  cobra.ExactArgs(1),
		RunE:  LogDetHandler,
	}
	cmd.Flags().String("rhs", "", "JSON file holding b as an array")
	cmd.Flags().Bool("grad", false, "Also print the gradient with respect to A")
	addOptionFlags(cmd)
	return cmd
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "root MATRIX",
		Short: "Compute a root decomposition R with R Rᵀ ≈ A",
		Args:  cobra.ExactArgs(1),
		RunE:  RootHandler,
	}
	cmd.Flags().Bool("inverse", false, "Compute R with R Rᵀ ≈ A⁻¹")
	cmd.Flags().Bool("pc", false, "Seed the root with a pivoted Cholesky factor")
	addOptionFlags(cmd)
	return cmd
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show the effective LINOP_* settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vars := envconfig.AsMap()
			keys := make([]string, 0, len(vars))
			for k := range vars {
				keys = append(keys, k)
			}
			slices.Sort(keys)

			values := envconfig.Values()
			data := make([][]string, 0, len(keys))
			for _, k := range keys {
				data = append(data, []string{k, values[k], vars[k].Description})
			}
			renderTable(cmd.OutOrStdout(), []string{"NAME", "VALUE", "DESCRIPTION"}, data)
			return nil
		},
	}
}

func addOptionFlags(cmd *cobra.Command) {
	cmd.Flags().Int("samples", 0, "Probe count for log-determinants (LINOP_NUM_TRACE_SAMPLES)")
	cmd.Flags().Int("max-cg", 0, "CG iteration cap (LINOP_MAX_CG_ITERATIONS)")
	cmd.Flags().Float64("tol", 0, "CG relative residual (LINOP_CG_TOLERANCE)")
	cmd.Flags().Int("max-lanczos", 0, "Lanczos subspace cap (LINOP_MAX_LANCZOS_ITERATIONS)")
	cmd.Flags().Int("rank", 0, "Pivoted Cholesky rank (LINOP_MAX_PRECONDITIONER_SIZE)")
	cmd.Flags().Int64("seed", -1, "Probe seed; negative uses LINOP_SEED or a random seed")
	cmd.Flags().String("precond", "none", "CG preconditioner: none, jacobi or pivchol")
	cmd.Flags().Int("max-cholesky", 0, "Largest n*n factored by dense Cholesky (LINOP_MAX_CHOLESKY_NUMEL)")
	cmd.Flags().Float64("scale", 1, "Work with scale*A")
	cmd.Flags().Float64("jitter", 0, "Add jitter to the diagonal of A")
}

func optionsFromFlags(cmd *cobra.Command) (lazy.Options, error) {
	var opts lazy.Options
	var err error
	if opts.NumTraceSamples, err = cmd.Flags().GetInt("samples"); err != nil {
		return opts, err
	}
	if opts.MaxCGIterations, err = cmd.Flags().GetInt("max-cg"); err != nil {
		return opts, err
	}
	if opts.CGTolerance, err = cmd.Flags().GetFloat64("tol"); err != nil {
		return opts, err
	}
	if opts.MaxLanczosIterations, err = cmd.Flags().GetInt("max-lanczos"); err != nil {
		return opts, err
	}
	if opts.MaxPreconditionerSize, err = cmd.Flags().GetInt("rank"); err != nil {
		return opts, err
	}
	if opts.MaxCholeskyNumel, err = cmd.Flags().GetInt("max-cholesky"); err != nil {
		return opts, err
	}
	precond, err := cmd.Flags().GetString("precond")
	if err != nil {
		return opts, err
	}
	if opts.Preconditioner, err = lazy.ParsePreconditionerKind(precond); err != nil {
		return opts, err
	}
	seed, err := cmd.Flags().GetInt64("seed")
	if err != nil {
		return opts, err
	}
	if seed >= 0 {
		opts.Rand = lazy.Seeded(uint64(seed))
	}
	return opts, nil
}

// loadOperator reads a JSON [][]float64 matrix and wraps it, applying
// --scale and --jitter.
func loadOperator(cmd *cobra.Command, path string, backend lazy.Backend) (*lazy.NonLazy, error) {
	var rows [][]float64
	if err := readJSON(path, &rows); err != nil {
		return nil, err
	}
	n := len(rows)
	data := make([]float64, 0, n*n)
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("%s: row %d has %d entries, expected %d", path, i, len(row), n)
		}
		data = append(data, row...)
	}
	a, err := tensor.FromSlice(data, tensor.Shape{n, n})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	opts, err := optionsFromFlags(cmd)
	if err != nil {
		return nil, err
	}
	op, err := lazy.New(a, backend, opts)
	if err != nil {
		return nil, err
	}

	scale, err := cmd.Flags().GetFloat64("scale")
	if err != nil {
		return nil, err
	}
	if scale != 1 {
		if op, err = op.MulConstant(scale); err != nil {
			return nil, err
		}
	}
	jitter, err := cmd.Flags().GetFloat64("jitter")
	if err != nil {
		return nil, err
	}
	if jitter != 0 {
		d := make([]float64, n)
		for i := range d {
			d[i] = jitter
		}
		if op, err = op.AddDiag(tensor.MustFromSlice(d, tensor.Shape{n})); err != nil {
			return nil, err
		}
	}
	return op, nil
}

// loadVector reads a JSON []float64 from the --rhs flag, or returns nil.
func loadVector(cmd *cobra.Command) (*tensor.RawTensor, error) {
	path, err := cmd.Flags().GetString("rhs")
	if err != nil || path == "" {
		return nil, err
	}
	var v []float64
	if err := readJSON(path, &v); err != nil {
		return nil, err
	}
	return tensor.FromSlice(v, tensor.Shape{len(v)})
}

func readJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// SolveHandler prints x = A⁻¹b.
func SolveHandler(cmd *cobra.Command, args []string) error {
	op, err := loadOperator(cmd, args[0], lazy.NewBackend())
	if err != nil {
		return err
	}
	b, err := loadVector(cmd)
	if err != nil {
		return err
	}
	if b == nil {
		b = tensor.Ones(tensor.Shape{op.Size()})
	}

	x, err := op.InvMatmul(b)
	if err != nil {
		return err
	}

	data := make([][]string, 0, op.Size())
	for i, v := range x.AsFloat64() {
		data = append(data, []string{strconv.Itoa(i), formatFloat(b.AsFloat64()[i]), formatFloat(v)})
	}
	renderTable(cmd.OutOrStdout(), []string{"I", "B", "X"}, data)
	return nil
}

// LogDetHandler prints the log-determinant estimate, the inverse quadratic
// form when --rhs is set, and optionally ∂ log det A / ∂A.
func LogDetHandler(cmd *cobra.Command, args []string) error {
	backend := lazy.NewBackend()
	op, err := loadOperator(cmd, args[0], backend)
	if err != nil {
		return err
	}
	b, err := loadVector(cmd)
	if err != nil {
		return err
	}
	grad, err := cmd.Flags().GetBool("grad")
	if err != nil {
		return err
	}

	backend.Tape().StartRecording()
	invQuad, logDet, err := op.InvQuadLogDet(b, true)
	if err != nil {
		return err
	}

	data := [][]string{{"log_det", formatFloat(logDet.Item())}}
	if invQuad != nil {
		data = append(data, []string{"inv_quad", formatFloat(invQuad.Item())})
	}
	w := cmd.OutOrStdout()
	renderTable(w, []string{"QUANTITY", "VALUE"}, data)

	if grad {
		grads := autodiff.BackwardFrom(map[*tensor.RawTensor]*tensor.RawTensor{
			logDet: tensor.Ones(logDet.Shape()),
		}, backend)
		fmt.Fprintln(w)
		renderMatrix(w, grads[op.Matrix()])
	}
	return nil
}

// RootHandler prints a root decomposition.
func RootHandler(cmd *cobra.Command, args []string) error {
	op, err := loadOperator(cmd, args[0], lazy.NewBackend())
	if err != nil {
		return err
	}
	inverse, err := cmd.Flags().GetBool("inverse")
	if err != nil {
		return err
	}
	pc, err := cmd.Flags().GetBool("pc")
	if err != nil {
		return err
	}

	var r *tensor.RawTensor
	switch {
	case inverse && pc:
		return fmt.Errorf("--inverse and --pc cannot be combined")
	case inverse:
		r, err = op.RootInvDecomposition()
	case pc:
		r, err = op.RootDecompositionPC()
	default:
		r, err = op.RootDecomposition()
	}
	if err != nil {
		return err
	}

	renderMatrix(cmd.OutOrStdout(), r)
	return nil
}

func renderMatrix(w io.Writer, m *tensor.RawTensor) {
	rows, cols := m.Shape().MatrixDims()
	header := make([]string, cols)
	for j := range header {
		header[j] = strconv.Itoa(j)
	}
	data := make([][]string, rows)
	for i := range data {
		data[i] = make([]string, cols)
		for j := range data[i] {
			data[i][j] = formatFloat(m.At(i, j))
		}
	}
	renderTable(w, header, data)
}

func renderTable(w io.Writer, header []string, data [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoFormatHeaders(false)
	table.AppendBulk(data)
	table.Render()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 8, 64)
}
