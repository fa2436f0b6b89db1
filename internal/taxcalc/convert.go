package taxcalc

// COPToUVT converts pesos to tax value units.
func (p Params) COPToUVT(cop float64) float64 {
	return cop / p.UVTValue
}

// UVTToCOP converts tax value units to pesos.
func (p Params) UVTToCOP(uvt float64) float64 {
	return uvt * p.UVTValue
}
