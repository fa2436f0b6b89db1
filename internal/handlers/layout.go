package handlers

import (
	"html"

	"ahorrove/internal/config"
)

// SharedMetaTags returns common SEO meta tags for a page.
func SharedMetaTags(title, description, canonicalPath string) string {
	base := config.Cfg.BaseURL
	title = html.EscapeString(title)
	description = html.EscapeString(description)
	return `<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>` + title + `</title>
<meta name="description" content="` + description + `">
<meta name="robots" content="index, follow">
<meta property="og:type" content="website">
<meta property="og:url" content="` + base + canonicalPath + `">
<meta property="og:title" content="` + title + `">
<meta property="og:description" content="` + description + `">
<meta property="og:locale" content="es_CO">
<meta property="og:site_name" content="AhorroVE">
<meta name="twitter:card" content="summary">
<meta name="twitter:title" content="` + title + `">
<meta name="twitter:description" content="` + description + `">
<link rel="canonical" href="` + base + canonicalPath + `">
<meta name="theme-color" content="#14532D">`
}

// SharedCSS returns CSS for shared layout components (header, nav, footer, cookie banner).
func SharedCSS() string {
	return `
:root{--ink:#1C1C1F;--ink-75:#404045;--ink-50:#6B6B72;--ink-15:#D4D4D7;--ink-05:#F0F0F1;--paper:#F8FAF7;--cream:#EEF3EC;--green:#14532D;--green-mid:#1F7A45;--green-light:#E3F1E7;--amber:#B45309;--amber-light:#FEF3C7;--red:#B91C1C;--radius:6px;--radius-lg:10px;--shadow-card:0 1px 3px rgba(0,0,0,0.05),0 4px 16px rgba(0,0,0,0.04);--max-w:1040px;--gutter:24px}
*{margin:0;padding:0;box-sizing:border-box}
body{font-family:-apple-system,'Segoe UI',Roboto,sans-serif;background:var(--paper);color:var(--ink);min-height:100vh;font-size:15px;line-height:1.65;-webkit-font-smoothing:antialiased}
h1,h2,h3{font-weight:700;line-height:1.25}
a{color:var(--green-mid);text-decoration:none}a:hover{text-decoration:underline}
.container{max-width:var(--max-w);margin:0 auto;padding:0 var(--gutter)}
.page-content{max-width:760px;margin:0 auto;padding:0 var(--gutter)}
.site-header{background:#fff;border-bottom:1px solid var(--ink-15);position:sticky;top:0;z-index:100}
.site-header .header-inner{display:flex;align-items:center;justify-content:space-between;height:56px}
.site-header .logo{display:flex;align-items:center;gap:8px;color:var(--ink)}
.site-header .logo:hover{text-decoration:none}
.logo-mark{width:28px;height:28px;background:var(--green);border-radius:6px;display:flex;align-items:center;justify-content:center;color:#fff;font-weight:700;font-size:14px}
.logo-text{font-weight:700;font-size:1.1rem;color:var(--green)}
.main-nav{display:flex;gap:20px}
.nav-link{font-size:.86rem;color:var(--ink-50)}
.nav-link:hover{color:var(--green);text-decoration:none}
.nav-link.active{color:var(--green);font-weight:600}
.site-footer{background:var(--cream);border-top:1px solid var(--ink-15);padding:28px 0 24px;margin-top:48px;text-align:center}
.footer-nav{display:flex;justify-content:center;gap:16px;flex-wrap:wrap;margin-bottom:14px}
.footer-nav a{font-size:.8rem;color:var(--ink-50)}
.footer-disclaimer{font-size:.72rem;color:var(--ink-50);line-height:1.5;font-style:italic;max-width:640px;margin:0 auto}
.cookie-banner{position:fixed;bottom:0;left:0;right:0;background:#fff;border-top:1px solid var(--ink-15);padding:16px 24px;z-index:1000;box-shadow:0 -2px 10px rgba(0,0,0,0.1);display:none}
.cookie-inner{max-width:var(--max-w);margin:0 auto;display:flex;align-items:center;gap:16px;flex-wrap:wrap}
.cookie-text{flex:1;font-size:.82rem;color:var(--ink-75)}
.cookie-btn{padding:8px 18px;border:none;border-radius:var(--radius);font-family:inherit;font-size:.82rem;font-weight:600;cursor:pointer}
.cookie-btn-accept{background:var(--green);color:#fff}
.cookie-btn-reject{background:var(--ink-05);color:var(--ink-75)}
@media(max-width:640px){.main-nav{gap:12px}.nav-link{font-size:.78rem}.cookie-inner{flex-direction:column;text-align:center}}
.field-invalid{border-color:var(--red)!important;box-shadow:0 0 0 2px rgba(185,28,28,0.15)!important}
.field-error{color:var(--red);font-size:.78rem;margin-top:3px;display:block}
`
}

// SharedGTMNoscript returns the GTM noscript iframe (placed right after <body>).
func SharedGTMNoscript() string {
	if config.Cfg.GTMID == "" {
		return ""
	}
	return `<noscript><iframe src="https://www.googletagmanager.com/ns.html?id=` + config.Cfg.GTMID + `" height="0" width="0" style="display:none;visibility:hidden"></iframe></noscript>`
}

// SharedHeader returns the header with nav. activePage is "/" or "/beneficios-tributarios".
func SharedHeader(activePage string) string {
	homeActive, benefitsActive := "", ""
	switch activePage {
	case "/":
		homeActive = " active"
	case "/beneficios-tributarios":
		benefitsActive = " active"
	}
	return SharedGTMNoscript() + `<header class="site-header"><div class="container header-inner">` +
		`<a href="/" class="logo" aria-label="AhorroVE, volver al inicio">` +
		`<div class="logo-mark">VE</div><span class="logo-text">AhorroVE</span></a>` +
		`<nav class="main-nav" aria-label="Navegación principal">` +
		`<a href="/" class="nav-link` + homeActive + `">Calculadora</a>` +
		`<a href="/beneficios-tributarios" class="nav-link` + benefitsActive + `">Beneficios tributarios</a>` +
		`</nav></div></header>`
}

// SharedFooter returns the footer HTML.
func SharedFooter() string {
	return `<footer class="site-footer" role="contentinfo"><div class="container">` +
		`<nav class="footer-nav" aria-label="Navegación del pie de página">` +
		`<a href="/">Calculadora</a>` +
		`<a href="/beneficios-tributarios">Beneficios tributarios</a>` +
		`</nav>` +
		`<div class="footer-disclaimer">` +
		`<p>Los resultados son estimaciones con fines informativos y no constituyen asesoría tributaria. ` +
		`Consulta con un contador o asesor tributario antes de tomar decisiones.</p>` +
		`</div></div></footer>`
}

// SharedCookieBanner returns the cookie consent banner HTML.
func SharedCookieBanner() string {
	return `<div id="cookieBanner" class="cookie-banner"><div class="cookie-inner">` +
		`<div class="cookie-text">Usamos cookies técnicas y, con tu consentimiento, cookies analíticas para mejorar el servicio.</div>` +
		`<div class="cookie-btns">` +
		`<button class="cookie-btn cookie-btn-accept" onclick="acceptCookies()">Aceptar</button> ` +
		`<button class="cookie-btn cookie-btn-reject" onclick="rejectCookies()">Rechazar</button>` +
		`</div></div></div>`
}

// SharedScripts returns the consent and analytics JS shared by every page.
func SharedScripts() string {
	return `<script>
window.dataLayer=window.dataLayer||[];
function pushDataLayer(obj){window.dataLayer.push(obj);}
var __GTM_ID__='` + config.Cfg.GTMID + `';
function loadGTM(){if(!__GTM_ID__||window._gtmLoaded)return;window._gtmLoaded=true;(function(w,d,s,l,i){w[l]=w[l]||[];w[l].push({'gtm.start':new Date().getTime(),event:'gtm.js'});var f=d.getElementsByTagName(s)[0],j=d.createElement(s),dl=l!='dataLayer'?'&l='+l:'';j.async=true;j.src='https://www.googletagmanager.com/gtm.js?id='+i+dl;f.parentNode.insertBefore(j,f)})(window,document,'script','dataLayer',__GTM_ID__);}
if(localStorage.getItem('cookie_consent')==='accepted'){loadGTM();}
function acceptCookies(){localStorage.setItem('cookie_consent','accepted');document.getElementById('cookieBanner').style.display='none';loadGTM();pushDataLayer({event:'cookie_consent',consent:'accepted'})}
function rejectCookies(){localStorage.setItem('cookie_consent','rejected');document.getElementById('cookieBanner').style.display='none';pushDataLayer({event:'cookie_consent',consent:'rejected'})}
if(!localStorage.getItem('cookie_consent')){document.getElementById('cookieBanner').style.display='block'}
</script>`
}
