package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lccnr/internal/cli"
	"lccnr/internal/models"
	"lccnr/pkg/nifti"
	"lccnr/pkg/validation"
)

func TestBindEnvVars(t *testing.T) {
	tcs := map[string]struct {
		envVars       map[string]string
		wantLogLevel  string
		wantLogFormat string
		args          []string
	}{
		"environment variables are bound when no args provided": {
			envVars: map[string]string{
				"LCCNR_LOG_LEVEL":  "debug",
				"LCCNR_LOG_FORMAT": "json",
			},
			args:          []string{},
			wantLogLevel:  "debug",
			wantLogFormat: "json",
		},
		"command line args take precedence over environment variables": {
			envVars: map[string]string{
				"LCCNR_LOG_LEVEL":  "debug",
				"LCCNR_LOG_FORMAT": "json",
			},
			args:          []string{"--log-level", "error", "--log-format", "text"},
			wantLogLevel:  "error",
			wantLogFormat: "text",
		},
		"no environment variables uses defaults": {
			envVars:       map[string]string{},
			args:          []string{},
			wantLogLevel:  "info",
			wantLogFormat: "text",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			for key, val := range tc.envVars {
				t.Setenv(key, val)
			}

			cmd := cli.NewRootCmd()
			err := cmd.ParseFlags(tc.args)
			require.NoError(t, err)

			logLevel, err := cmd.Flags().GetString("log-level")
			require.NoError(t, err)
			assert.Equal(t, tc.wantLogLevel, logLevel)

			logFormat, err := cmd.Flags().GetString("log-format")
			require.NoError(t, err)
			assert.Equal(t, tc.wantLogFormat, logFormat)
		})
	}
}

func TestEnvironmentVariableUsageUpdate(t *testing.T) {
	cmd := cli.NewRootCmd()

	logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, logLevelFlag)
	assert.Contains(t, logLevelFlag.Usage, "$LCCNR_LOG_LEVEL")

	cnrCmd, _, err := cmd.Find([]string{"cnr"})
	require.NoError(t, err)
	dbFlag := cnrCmd.Flags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Contains(t, dbFlag.Usage, "$LCCNR_DB")
}

// writeMask writes a 40x40x16 mask marked on the given slices; a swapped
// slice has its LC labels exchanged.
func writeMask(t *testing.T, path string, swapped int, slices ...int) {
	t.Helper()
	v := models.NewVolume(40, 40, 16)
	for _, z := range slices {
		right, left := validation.RightLC, validation.LeftLC
		if z == swapped {
			right, left = left, right
		}
		for y := 5; y < 10; y++ {
			v.Set(31, y, z, float64(right))
			v.Set(10, y, z, float64(left))
		}
		for y := 13; y < 23; y++ {
			for x := 16; x < 26; x++ {
				v.Set(x, y, z, float64(validation.PT))
			}
		}
	}
	require.NoError(t, nifti.WriteFile(path, v, nifti.Uint8))
}

func writeImage(t *testing.T, path string) {
	t.Helper()
	v := models.NewVolume(40, 40, 16)
	for i := range v.Data {
		v.Data[i] = 80
	}
	for z := range 16 {
		for y := 5; y < 10; y++ {
			v.Set(31, y, z, 120)
			v.Set(10, y, z, 100)
		}
	}
	require.NoError(t, nifti.WriteFile(path, v, nifti.Int16))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckCmd(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.nii.gz")
	bad := filepath.Join(dir, "bad.nii")
	writeMask(t, good, -1, 10, 11, 12)
	writeMask(t, bad, 11, 10, 11, 12)

	out, err := execute(t, "check", "--log-level", "error", good)
	require.NoError(t, err)
	assert.Contains(t, out, "No errors found in mask")

	out, err = execute(t, "check", "--log-level", "error", good, bad)
	require.ErrorIs(t, err, cli.ErrMaskInvalid)
	assert.Contains(t, out, "slice 12 [label_orientation]")
	assert.Contains(t, out, "1 error(s) found in mask")

	_, err = execute(t, "check", filepath.Join(dir, "absent.nii"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCheckCmdContinuesAfterLoadFailure(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.nii.gz")
	bad := filepath.Join(dir, "bad.nii")
	absent := filepath.Join(dir, "absent.nii")
	writeMask(t, good, -1, 10, 11, 12)
	writeMask(t, bad, 11, 10, 11, 12)

	cmd := cli.NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"check", absent, good, bad})

	err := cmd.Execute()
	require.ErrorIs(t, err, os.ErrNotExist)
	require.ErrorIs(t, err, cli.ErrMaskInvalid)
	assert.Contains(t, err.Error(), "2 of 3 mask(s)")

	assert.Contains(t, out.String(), good)
	assert.Contains(t, out.String(), "No errors found in mask")
	assert.Contains(t, out.String(), "slice 12 [label_orientation]")

	// Rule failures are reported once, on stdout
	assert.NotContains(t, errOut.String(), "label_orientation")
	assert.Equal(t, 1, strings.Count(out.String(), "slice 12 [label_orientation]"))
}

func TestCNRCmd(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "LC_FSE.nii")
	mask := filepath.Join(dir, "LC_ROI_rater1.nii.gz")
	db := filepath.Join(dir, "runs.db")
	writeImage(t, image)
	writeMask(t, mask, -1, 10, 11, 12)

	out, err := execute(t, "cnr", "-i", image, "-m", mask, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "0 mask error(s)")
	assert.Contains(t, out, "run id: ")

	data, err := os.ReadFile(filepath.Join(dir, "LC_ROI_rater1.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "11\t100\t120\t80\t0.375\t0.25\t0.5")

	_, err = execute(t, "cnr", "-i", image, "-m", mask)
	require.Error(t, err, "existing output without --force")

	_, err = execute(t, "cnr", "-i", image, "-m", mask, "-f")
	require.NoError(t, err)

	out, err = execute(t, "runs", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, mask)
}

func TestCNRCmdStructuralError(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "LC_FSE.nii")
	mask := filepath.Join(dir, "LC_ROI_rater1.nii")
	writeImage(t, image)
	writeMask(t, mask, -1, 10, 11)

	out, err := execute(t, "cnr", "-i", image, "-m", mask)
	require.ErrorIs(t, err, validation.ErrSliceCount)
	assert.Contains(t, out, "1 mask error(s)")
	assert.FileExists(t, filepath.Join(dir, "LC_ROI_rater1.txt"), "contrast is still written")
}

func TestCNRCmdUsesConfig(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "LC_FSE.nii")
	mask := filepath.Join(dir, "LC_ROI_rater1.nii")
	writeImage(t, image)
	writeMask(t, mask, -1, 10, 11)

	cfgPath := filepath.Join(dir, "lccnr.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("output:\n  strict: true\n"), 0o644))

	_, err := execute(t, "--config", cfgPath, "cnr", "-i", image, "-m", mask)
	require.ErrorIs(t, err, validation.ErrSliceCount)
	assert.NoFileExists(t, filepath.Join(dir, "LC_ROI_rater1.txt"))
}

func TestBatchCmd(t *testing.T) {
	base := t.TempDir()
	for _, subject := range []string{"sub01", "sub02"} {
		require.NoError(t, os.MkdirAll(filepath.Join(base, subject), 0o755))
		writeImage(t, filepath.Join(base, subject, "LC_TSE.nii.gz"))
	}
	writeMask(t, filepath.Join(base, "sub01", "LC_ROI_rater1.nii"), -1, 10, 11, 12)

	out, err := execute(t, "batch", "-d", base, "-m", "LC_ROI_rater1", "-s", "sub01,sub02", "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "sub01: 0 mask error(s)")
	assert.Contains(t, out, "sub02: skipped")
	assert.FileExists(t, filepath.Join(base, "sub01", "LC_ROI_rater1.txt"))
}

func TestGatherCmd(t *testing.T) {
	base := t.TempDir()
	indir := filepath.Join(base, "subjects")
	subj := filepath.Join(indir, "MRIPROC_001")
	require.NoError(t, os.MkdirAll(subj, 0o755))
	writeImage(t, filepath.Join(subj, "LC_FSE.nii"))
	for _, rater := range []string{"LC_ROI_rater1.nii", "LC_ROI_rater2.nii"} {
		writeMask(t, filepath.Join(subj, rater), -1, 10, 11, 12)
		_, err := execute(t, "cnr", "-i", filepath.Join(subj, "LC_FSE.nii"), "-m", filepath.Join(subj, rater))
		require.NoError(t, err)
	}

	outfile := filepath.Join(base, "summary.csv")
	out, err := execute(t, "gather", indir, "-o", outfile)
	require.NoError(t, err)
	assert.Contains(t, out, "1 subject(s) saved")

	data, err := os.ReadFile(outfile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "SubjectID,Left_LC_rostral2,"))
	assert.FileExists(t, filepath.Join(base, "summary_diff.csv"))
}

func TestReorientCmd(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "las.nii")
	out := filepath.Join(dir, "ras.nii.gz")

	v := models.NewVolume(3, 2, 2)
	for i := range v.Data {
		v.Data[i] = float64(i)
	}
	v.Affine[0][0] = -1
	v.Affine[0][3] = 2
	require.NoError(t, nifti.WriteFile(in, v, nifti.Int16))

	_, err := execute(t, "reorient", in, out)
	require.NoError(t, err)

	img, err := nifti.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, nifti.IsCanonical(img.Volume))
	assert.InDelta(t, 2, img.Volume.At(0, 0, 0), 0)
	assert.Equal(t, nifti.Int16, img.Header.Datatype)
}

func TestConfigInitCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lccnr.yaml")

	_, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = execute(t, "config", "init", path)
	require.Error(t, err)

	_, err = execute(t, "config", "init", "--force", path)
	require.NoError(t, err)

	out, err := execute(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "ptVentralOffset: 6")
}
