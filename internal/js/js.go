package js

// Element snippets are evaluated with the element bound to `this`, so they must stay
// plain functions rather than arrow functions.

var SCROLL_CLICK string = `
function () {
    this.scrollIntoView({block: 'center'});
    this.click();
}
`

var CLEAR_VALUE string = `
function () {
    this.focus();
    this.value = '';
    this.dispatchEvent(new Event('input', {bubbles: true}));
    this.dispatchEvent(new Event('change', {bubbles: true}));
}
`

var PRINT string = `
() => {
    window.print();
}
`

// Is the element the top-most node at the centre of one of its client rects, i.e. would a
// real mouse click land on it.
var IS_TOP_VISIBLE string = `
(xpath) => {
    element = document.evaluate(xpath, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
    if (element === null) return false;

    if (element.offsetWidth === 0 || element.offsetHeight === 0) return false;
    var rects = element.getClientRects(),
        on_top = function (r) {
            var x = (r.left + r.right) / 2, y = (r.top + r.bottom) / 2;
            var hit = document.elementFromPoint(x, y);
            return hit === element || element.contains(hit);
        };
    for (var i = 0, l = rects.length; i < l; i++) {
        var r = rects[i]
        if (on_top(r)) return true;
    }
    return false;
}
`
