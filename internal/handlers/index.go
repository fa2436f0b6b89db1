package handlers

import (
	"html/template"
	"net/http"
	"sync"

	"ahorrove/internal/config"
	"ahorrove/internal/logger"
)

var (
	indexTmpl     *template.Template
	indexTmplOnce sync.Once
)

type indexData struct {
	Meta             template.HTML
	CSS              template.CSS
	Header           template.HTML
	Footer           template.HTML
	CookieBanner     template.HTML
	Scripts          template.HTML
	TurnstileSiteKey string
	TaxYear          int
	MinVehiculo      int
	MaxVehiculo      int
}

func loadIndexTemplate() {
	indexTmpl = template.Must(template.New("index").Parse(indexHTML))
}

// IndexHandler renders the calculator page.
func IndexHandler(w http.ResponseWriter, r *http.Request) {
	indexTmplOnce.Do(loadIndexTemplate)

	year := config.Cfg.TaxYear
	if deps.Tables != nil {
		year = deps.Tables.DefaultYear()
	}
	data := indexData{
		Meta: template.HTML(SharedMetaTags(
			"Calculadora de ahorro tributario por vehículo eléctrico | AhorroVE",
			"Calcula cuánto impuesto de renta puedes ahorrar en Colombia deduciendo la compra de un vehículo eléctrico.",
			"/")),
		CSS:              template.CSS(SharedCSS() + indexCSS),
		Header:           template.HTML(SharedHeader("/")),
		Footer:           template.HTML(SharedFooter()),
		CookieBanner:     template.HTML(SharedCookieBanner()),
		Scripts:          template.HTML(SharedScripts()),
		TurnstileSiteKey: config.Cfg.TurnstileSiteKey,
		TaxYear:          year,
		MinVehiculo:      minValorVehiculo,
		MaxVehiculo:      maxValorVehiculo,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, data); err != nil {
		logger.Error("index template execute failed", map[string]interface{}{"error": err.Error()})
	}
}

const indexCSS = `
.hero{padding:40px 0 24px}
.hero h1{font-size:clamp(1.6rem,4vw,2.3rem);color:var(--green);margin-bottom:10px}
.hero p{color:var(--ink-75);max-width:640px}
.calc-grid{display:grid;grid-template-columns:1fr 1fr;gap:28px;align-items:start}
.card{background:#fff;border-radius:var(--radius-lg);box-shadow:var(--shadow-card);padding:24px}
.card h2{font-size:1.1rem;margin-bottom:14px}
.field{margin-bottom:14px}
.field label{display:block;font-size:.82rem;font-weight:600;margin-bottom:4px;color:var(--ink-75)}
.field input,.field select{width:100%;padding:10px 12px;border:1px solid var(--ink-15);border-radius:var(--radius);font:inherit;background:#fff}
.field small{color:var(--ink-50);font-size:.74rem}
.row2{display:grid;grid-template-columns:1fr 1fr;gap:12px}
.check{display:flex;gap:8px;align-items:center;font-size:.86rem;margin-bottom:10px}
.btn{display:inline-block;padding:12px 24px;background:var(--green);color:#fff;border:none;border-radius:var(--radius);font:inherit;font-weight:600;cursor:pointer}
.btn:disabled{opacity:.6;cursor:wait}
.btn-outline{background:#fff;color:var(--green);border:1px solid var(--green)}
.upload{border:1px dashed var(--ink-15);border-radius:var(--radius);padding:12px;font-size:.82rem;margin-bottom:16px;background:var(--cream)}
.form-error{color:var(--red);font-size:.86rem;margin-top:10px;min-height:1.2em}
.big{font-size:2rem;font-weight:800;color:var(--green)}
.muted{color:var(--ink-50);font-size:.82rem}
table.cmp{width:100%;border-collapse:collapse;margin:16px 0;font-size:.86rem}
table.cmp th,table.cmp td{padding:7px 6px;border-bottom:1px solid var(--ink-05);text-align:right}
table.cmp th:first-child,table.cmp td:first-child{text-align:left}
.reco{background:var(--green-light);border-left:4px solid var(--green);padding:12px 14px;border-radius:var(--radius);margin:12px 0;font-size:.88rem}
.alerts{background:var(--amber-light);border-left:4px solid var(--amber);padding:10px 14px;border-radius:var(--radius);font-size:.84rem}
.alerts li{margin-left:16px}
@media(max-width:820px){.calc-grid{grid-template-columns:1fr}.row2{grid-template-columns:1fr}}
`

const indexHTML = `<!DOCTYPE html>
<html lang="es">
<head>
{{.Meta}}
<style>{{.CSS}}</style>
{{if .TurnstileSiteKey}}<script src="https://challenges.cloudflare.com/turnstile/v0/api.js" async defer></script>{{end}}
</head>
<body>
{{.Header}}
<main class="container">
<section class="hero">
<h1>¿Cuánto ahorras en renta con un vehículo eléctrico?</h1>
<p>La Ley 1715 de 2014 permite deducir de la renta la inversión en vehículos eléctricos. Calcula tu ahorro con la tabla del año gravable {{.TaxYear}}.</p>
</section>
<div class="calc-grid">
<form id="calcForm" class="card" novalidate>
<h2>Tus datos</h2>
<div class="upload">
<label for="certificado"><strong>¿Tienes tu certificado de ingresos y retenciones?</strong> Súbelo en PDF y completamos tus ingresos.</label>
<input type="file" id="certificado" accept="application/pdf">
<div id="uploadStatus" class="muted"></div>
</div>
<div class="row2">
<div class="field"><label for="nombre">Nombre completo</label><input id="nombre" name="nombre" required minlength="2" maxlength="100"></div>
<div class="field"><label for="email">Correo electrónico</label><input id="email" name="email" type="email" required maxlength="255"></div>
</div>
<div class="row2">
<div class="field"><label for="cedula_nit">Cédula o NIT</label><input id="cedula_nit" name="cedula_nit" required minlength="5" maxlength="20"></div>
<div class="field"><label for="celular">Celular</label><input id="celular" name="celular" type="tel" required minlength="10" maxlength="15"></div>
</div>
<div class="row2">
<div class="field"><label for="ciudad">Ciudad</label><input id="ciudad" name="ciudad" required minlength="2"></div>
<div class="field"><label for="tipo_cliente">Tipo de cliente</label>
<select id="tipo_cliente" name="tipo_cliente"><option value="natural">Persona natural</option><option value="empresa">Empresa</option></select></div>
</div>
<div class="field"><label for="ingresos_mensuales">Ingresos netos mensuales (COP)</label><input id="ingresos_mensuales" name="ingresos_mensuales" inputmode="numeric" required></div>
<div class="field"><label for="otras_deducciones">Otras deducciones anuales (COP)</label><input id="otras_deducciones" name="otras_deducciones" inputmode="numeric" value="0"><small>Dependientes, medicina prepagada, intereses de vivienda, aportes voluntarios.</small></div>
<div class="field"><label for="valor_vehiculo">Valor deducible del vehículo (COP)</label><input id="valor_vehiculo" name="valor_vehiculo" inputmode="numeric" required><small>Entre $1.000.000 y $1.000.000.000.</small></div>
<label class="check"><input type="checkbox" id="calcular_deduccion_optima" checked> Calcular la deducción óptima</label>
<label class="check"><input type="checkbox" id="incluir_renta_exenta" checked> Incluir la renta exenta del 25%</label>
<div class="field" id="aplicadaField" style="display:none"><label for="deduccion_vehiculo_aplicada">Deducción a aplicar este año (COP)</label><input id="deduccion_vehiculo_aplicada" inputmode="numeric"></div>
{{if .TurnstileSiteKey}}<div class="cf-turnstile" data-sitekey="{{.TurnstileSiteKey}}" data-callback="onTurnstile"></div>{{end}}
<button type="submit" class="btn" id="submitBtn">Calcular ahorro</button>
<div class="form-error" id="formError" role="alert"></div>
</form>
<section class="card" id="results" aria-live="polite">
<h2>Resultado</h2>
<p class="muted">Completa el formulario para ver cuánto impuesto puedes ahorrar.</p>
</section>
</div>
</main>
{{.Footer}}
{{.CookieBanner}}
{{.Scripts}}
<script>
var turnstileToken='';
function onTurnstile(t){turnstileToken=t}
var cop=new Intl.NumberFormat('es-CO',{style:'currency',currency:'COP',maximumFractionDigits:0});
var num=new Intl.NumberFormat('es-CO',{maximumFractionDigits:2});
function parseCOP(v){v=(v||'').replace(/[^0-9]/g,'');return v?Number(v):0}
function esc(s){var d=document.createElement('div');d.textContent=s;return d.innerHTML}
['ingresos_mensuales','otras_deducciones','valor_vehiculo','deduccion_vehiculo_aplicada'].forEach(function(id){
 var el=document.getElementById(id);el.addEventListener('blur',function(){if(el.value)el.value=num.format(parseCOP(el.value))});
});
document.getElementById('calcular_deduccion_optima').addEventListener('change',function(e){
 document.getElementById('aplicadaField').style.display=e.target.checked?'none':'block';
});
document.getElementById('certificado').addEventListener('change',function(e){
 var f=e.target.files[0];if(!f)return;var st=document.getElementById('uploadStatus');st.textContent='Leyendo certificado...';
 var fd=new FormData();fd.append('file',f);
 fetch('/api/parse-certificado',{method:'POST',body:fd}).then(function(r){return r.json()}).then(function(d){
  if(d.found){document.getElementById('ingresos_mensuales').value=num.format(d.ingreso_mensual);st.textContent='Ingresos anuales encontrados: '+cop.format(d.ingresos_anuales)}
  else{st.textContent=d.error||'No encontramos el total de ingresos. Escríbelo manualmente.'}
 }).catch(function(){st.textContent='No pudimos leer el archivo.'});
});
function v(id){return document.getElementById(id).value.trim()}
document.getElementById('calcForm').addEventListener('submit',function(e){
 e.preventDefault();var err=document.getElementById('formError');err.textContent='';
 var veh=parseCOP(v('valor_vehiculo'));
 if(veh<{{.MinVehiculo}}||veh>{{.MaxVehiculo}}){err.textContent='El valor del vehículo debe estar entre $1.000.000 y $1.000.000.000';return}
 var body={nombre:v('nombre'),email:v('email'),cedula_nit:v('cedula_nit'),celular:v('celular'),ciudad:v('ciudad'),
  tipo_cliente:v('tipo_cliente'),ingresos_mensuales:parseCOP(v('ingresos_mensuales')),otras_deducciones:parseCOP(v('otras_deducciones')),
  valor_vehiculo:veh,calcular_deduccion_optima:document.getElementById('calcular_deduccion_optima').checked,
  incluir_renta_exenta:document.getElementById('incluir_renta_exenta').checked};
 if(!body.calcular_deduccion_optima&&v('deduccion_vehiculo_aplicada')){body.deduccion_vehiculo_aplicada=parseCOP(v('deduccion_vehiculo_aplicada'))}
 var btn=document.getElementById('submitBtn');btn.disabled=true;
 fetch('/api/calculate',{method:'POST',headers:{'Content-Type':'application/json','X-Turnstile-Token':turnstileToken},body:JSON.stringify(body)})
 .then(function(r){return r.json()}).then(function(d){
  btn.disabled=false;if(!d.success){err.textContent=d.error||'No fue posible calcular.';return}
  renderResult(d.id,d.result);pushDataLayer({event:'calculation_completed',tipo_cliente:body.tipo_cliente});
 }).catch(function(){btn.disabled=false;err.textContent='Error de conexión. Intenta de nuevo.'});
});
function renderResult(id,r){
 var s0=r.without_vehicle,s1=r.with_vehicle,h='';
 h+='<h2>Resultado</h2><div class="big">'+cop.format(r.annual_savings)+'</div><p class="muted">ahorro anual estimado · año gravable '+r.year+'</p>';
 h+='<table class="cmp"><thead><tr><th></th><th>Sin vehículo</th><th>Con vehículo</th></tr></thead><tbody>';
 h+='<tr><td>Deducciones</td><td>'+cop.format(s0.deductions)+'</td><td>'+cop.format(s1.deductions)+'</td></tr>';
 h+='<tr><td>Renta exenta</td><td>'+cop.format(s0.labor_exemption)+'</td><td>'+cop.format(s1.labor_exemption)+'</td></tr>';
 h+='<tr><td>Renta gravable</td><td>'+cop.format(s0.taxable_income_cop)+'</td><td>'+cop.format(s1.taxable_income_cop)+'</td></tr>';
 h+='<tr><td>Renta en UVT</td><td>'+num.format(s0.taxable_income_uvt)+'</td><td>'+num.format(s1.taxable_income_uvt)+'</td></tr>';
 h+='<tr><td>Tramo</td><td>'+esc(s0.bracket.name)+'</td><td>'+esc(s1.bracket.name)+'</td></tr>';
 h+='<tr><td><strong>Impuesto</strong></td><td><strong>'+cop.format(s0.tax_cop)+'</strong></td><td><strong>'+cop.format(s1.tax_cop)+'</strong></td></tr>';
 h+='</tbody></table><p class="muted">Deducción aplicada: '+cop.format(r.vehicle_deduction_applied)+' · Ahorro por cada millón deducido: '+cop.format(r.savings_per_million_exact)+'</p>';
 if(r.optimal_deduction){var o=r.optimal_deduction;
  h+='<div class="reco"><strong>Deducción recomendada: '+cop.format(o.recommended_deduction)+'</strong><br>'+esc(o.reason)+'<br><span class="muted">Saldo deducible: '+cop.format(o.remaining_vehicle_deduction)+'</span></div>'}
 if(r.alerts&&r.alerts.length){h+='<ul class="alerts">';r.alerts.forEach(function(a){h+='<li>'+esc(a)+'</li>'});h+='</ul>'}
 h+='<p style="margin-top:16px"><a class="btn btn-outline" href="/api/report?id='+encodeURIComponent(id)+'">Descargar informe PDF</a></p>';
 document.getElementById('results').innerHTML=h;
}
</script>
</body>
</html>`
