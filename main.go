package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	"ahorrove/internal/logger"
	"ahorrove/internal/taxcalc"
	"ahorrove/internal/taxtable"
)

var rootCmd = &cobra.Command{
	Use:           "ahorrove",
	Short:         "Calculadora de ahorro en renta por vehículo eléctrico",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server (default)",
	RunE:  runServe,
}

var (
	calcIngresos  float64
	calcOtras     float64
	calcVehiculo  float64
	calcAplicada  float64
	calcOptima    bool
	calcSinExenta bool
	calcYear      int
	calcTables    string
)

var calcularCmd = &cobra.Command{
	Use:   "calcular",
	Short: "Compute one scenario and print the result as JSON",
	Args:  cobra.NoArgs,
	RunE:  runCalcular,
}

var tablasCmd = &cobra.Command{
	Use:   "tablas [file]",
	Short: "Validate a tax tables file and print its years",
	Long:  `Validates a YAML tax tables file (or the embedded tables when no file is given) and prints every year it defines.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTablas,
}

func init() {
	calcularCmd.Flags().Float64Var(&calcIngresos, "ingresos", 0, "Monthly net income (COP)")
	calcularCmd.Flags().Float64Var(&calcOtras, "otras-deducciones", 0, "Other annual deductions (COP)")
	calcularCmd.Flags().Float64Var(&calcVehiculo, "vehiculo", 0, "Deductible vehicle value (COP)")
	calcularCmd.Flags().Float64Var(&calcAplicada, "aplicada", -1, "Vehicle deduction to apply; negative means the full value")
	calcularCmd.Flags().BoolVar(&calcOptima, "optima", false, "Compute the optimal deduction")
	calcularCmd.Flags().BoolVar(&calcSinExenta, "sin-exenta", false, "Exclude the 25% labor exemption")
	calcularCmd.Flags().IntVar(&calcYear, "year", 0, "Tax year (default: tables default year)")
	calcularCmd.Flags().StringVar(&calcTables, "tablas", "", "Tax tables file (default: embedded)")
	calcularCmd.MarkFlagRequired("ingresos")
	calcularCmd.MarkFlagRequired("vehiculo")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(calcularCmd)
	rootCmd.AddCommand(tablasCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", map[string]interface{}{"error": err})
		logger.Sync()
		os.Exit(1)
	}
}

func runCalcular(cmd *cobra.Command, args []string) error {
	tables, err := taxtable.Load(calcTables, 0)
	if err != nil {
		return err
	}
	calc, err := tables.Calculator(calcYear)
	if err != nil {
		return err
	}

	in := calcInput()
	res := calc.Compute(in)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func runTablas(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	tables, err := taxtable.Load(path, 0)
	if err != nil {
		return fmt.Errorf("tablas inválidas: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, year := range tables.Years() {
		calc, err := tables.Calculator(year)
		if err != nil {
			return err
		}
		p := calc.Params()
		marker := ""
		if year == tables.DefaultYear() {
			marker = " (default)"
		}
		fmt.Fprintf(out, "%d%s  UVT=%.0f  deducciones=%g UVT / %g%%  exenta=%g UVT\n",
			year, marker, p.UVTValue, p.MaxDeductionsUVT, p.MaxDeductionsRate*100, p.MaxExemptionUVT)
		for i, b := range p.Brackets {
			upper := "inf"
			if !math.IsInf(b.UpperUVT, 1) {
				upper = fmt.Sprintf("%g", b.UpperUVT)
			}
			fmt.Fprintf(out, "  %-4s hasta %-6s tarifa %.2f  base %g UVT  [%s]\n", b.Name, upper, b.Rate, b.OffsetUVT, p.TierRange(i))
		}
	}
	return nil
}

func calcInput() taxcalc.Input {
	exenta := !calcSinExenta
	in := taxcalc.Input{
		MonthlyNetIncome:      calcIngresos,
		OtherDeductionsAnnual: calcOtras,
		VehicleDeductionTotal: calcVehiculo,
		CalculateOptimal:      calcOptima,
		IncludeLaborExemption: &exenta,
	}
	if calcAplicada >= 0 {
		applied := calcAplicada
		in.VehicleDeductionApplied = &applied
	}
	return in
}
