package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/keerthanasaravanan18/college/internal/advisor"
	"github.com/keerthanasaravanan18/college/internal/agri"
	"github.com/keerthanasaravanan18/college/internal/logging"
)

type recommendFlags struct {
	location       string
	soilType       string
	ph             float64
	moisture       float64
	moistureStatus string
	temp           float64
	history        string
	lang           string
	local          bool
}

func newRecommendCommand(opts *globalOptions) *cobra.Command {
	flags := &recommendFlags{}
	def := advisor.DefaultSoil()
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Print crop recommendations for one field as JSON",
		Long: `recommend asks the model for the top crops for a location and soil profile.
Without api keys, with --local, or when the model returns nothing, the offline rule table answers instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecommend(cmd, opts, flags)
		},
	}
	cmd.Flags().StringVar(&flags.location, "location", "", "field location, e.g. \"Thanjavur, Tamil Nadu\"")
	cmd.Flags().StringVar(&flags.soilType, "soil-type", def.SoilType, "soil type (Black, Red, Alluvial, Laterite)")
	cmd.Flags().Float64Var(&flags.ph, "ph", def.PH, "soil pH")
	cmd.Flags().Float64Var(&flags.moisture, "moisture", def.Moisture, "soil moisture percentage")
	cmd.Flags().StringVar(&flags.moistureStatus, "moisture-status", "", "moisture status (Dry, Moist, Wet)")
	cmd.Flags().Float64Var(&flags.temp, "temp", advisor.DefaultWeather("").Temp, "current temperature in Celsius")
	cmd.Flags().StringVar(&flags.history, "history", "", "previous crops grown on the field")
	cmd.Flags().StringVar(&flags.lang, "lang", "en", "response language (en or ta)")
	cmd.Flags().BoolVar(&flags.local, "local", false, "skip the model and use the offline rule table")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func (f *recommendFlags) request() (advisor.RecommendationRequest, error) {
	location := strings.TrimSpace(f.location)
	if location == "" {
		return advisor.RecommendationRequest{}, errors.New("cli: --location must not be blank")
	}
	lang := strings.ToLower(strings.TrimSpace(f.lang))
	if lang != "en" && lang != "ta" {
		return advisor.RecommendationRequest{}, fmt.Errorf("cli: --lang must be en or ta, got %q", f.lang)
	}
	if f.ph < 0 || f.ph > 14 {
		return advisor.RecommendationRequest{}, fmt.Errorf("cli: --ph out of range: %v", f.ph)
	}
	if f.moisture < 0 || f.moisture > 100 {
		return advisor.RecommendationRequest{}, fmt.Errorf("cli: --moisture out of range: %v", f.moisture)
	}

	soil := advisor.DefaultSoil()
	soil.SoilType = strings.TrimSpace(f.soilType)
	soil.PH = f.ph
	soil.Moisture = f.moisture
	soil.MoistureStatus = strings.TrimSpace(f.moistureStatus)

	wx := advisor.DefaultWeather(location)
	wx.Temp = f.temp

	return advisor.RecommendationRequest{
		Location: location,
		Soil:     soil,
		Weather:  wx,
		History:  f.history,
		Language: lang,
	}, nil
}

func runRecommend(cmd *cobra.Command, opts *globalOptions, flags *recommendFlags) error {
	req, err := flags.request()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	cfg, err := opts.loader().Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := logging.NewWithWriter(cfg.Server.Logging, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var recs []agri.CropRecommendation
	if !flags.local && a.pool.Len() > 0 {
		recs = a.advisor.Recommendations(ctx, req)
	}
	if len(recs) == 0 {
		if !flags.local {
			logger.Warn("using offline rule table", slog.String("location", req.Location))
		}
		if recs, err = a.advisor.LocalRecommendations(req); err != nil {
			return fmt.Errorf("cli: local recommendations: %w", err)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"recommendations": recs})
}
