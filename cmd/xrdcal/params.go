package main

import (
	"github.com/spf13/cobra"
)

var paramsCmd = &cobra.Command{
	Use:   "params PONI",
	Short: "Show a PONI geometry in native and legacy form",
	Long: `Read a PONI file and print the native geometry together with the
detector-centric (Fit2D style) view: direct distance, beam centre, tilt
and tilt plane rotation. The legacy view is omitted when the geometry
cannot be expressed that way.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession()
		if err := s.SetStartValues(cfgManager.Get().Start()); err != nil {
			return err
		}
		if err := s.Load(args[0]); err != nil {
			return err
		}
		p, err := s.CalibrationParameters()
		if err != nil {
			return err
		}
		return output(p)
	},
}
